package config

type Game string

const (
	Crash Game = "crash"
)

func (g Game) Valid() bool {
	return g == Crash
}
