// Profiling:
// go build ./cmd/depotprof
// ./depotprof -mode cpu -entities 10000 -ticks 1000
// go tool pprof -http=":8000" -nodefraction=0.001 ./depotprof cpu.pprof

package main

import (
	"flag"
	"os"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/depot"
	"github.com/pkg/profile"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	Current int
}

type Dead struct{}

type Kills struct {
	Total int
}

func main() {
	entities := flag.Int("entities", 10000, "entities spawned before the first tick")
	ticks := flag.Int("ticks", 1000, "schedule passes to run")
	mode := flag.String("mode", "cpu", "profile mode: cpu or mem")
	config := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	if *config != "" {
		if err := depot.LoadConfig(*config); err != nil {
			fatal("load config", err)
		}
	}
	logger := bark.For("depotprof")

	var p interface{ Stop() }
	switch *mode {
	case "cpu":
		p = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	case "mem":
		p = profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	default:
		logger.Error("unknown profile mode", "mode", *mode)
		os.Exit(2)
	}
	err := run(*entities, *ticks)
	p.Stop()
	if err != nil {
		fatal("run", err)
	}
}

func run(numEntities, ticks int) error {
	storage := depot.Factory.NewStorage()
	depot.FactoryNewComponent[Position]()
	depot.FactoryNewComponent[Velocity]()
	depot.FactoryNewComponent[Health]()
	depot.FactoryNewSparseComponent[Dead]()
	if err := storage.InsertResource(Kills{}); err != nil {
		return err
	}

	for i := range numEntities {
		if _, err := storage.Spawn(
			Position{},
			Velocity{X: float64(i%7) - 3, Y: 1},
			Health{Current: 50 + i%100},
		); err != nil {
			return err
		}
	}

	move := depot.NewSystem1("move", func(q *depot.Query2[depot.Write[Position], depot.Read[Velocity]]) error {
		for cur := q.Iter(); cur.Next(); {
			pos := depot.GetMut[Position](cur)
			vel := depot.Get[Velocity](cur)
			pos.X += vel.X
			pos.Y += vel.Y
		}
		return nil
	})

	decay := depot.NewSystem2("decay", func(
		q *depot.Query2[depot.Write[Health], depot.Without[Dead]],
		cmd *depot.Commands,
	) error {
		for cur := q.Iter(); cur.Next(); {
			h := depot.GetMut[Health](cur)
			h.Current--
			if h.Current <= 0 {
				cmd.Insert(cur.Entity(), Dead{})
			}
		}
		return nil
	})

	reap := depot.NewSystem3("reap", func(
		q *depot.Query2[depot.Read[Health], depot.Added[Dead]],
		kills *depot.ResMut[Kills],
		cmd *depot.Commands,
	) error {
		for cur := q.Iter(); cur.Next(); {
			kills.Get().Total++
			cmd.Despawn(cur.Entity())
		}
		return nil
	}).After("decay")

	schedule := depot.Factory.NewSchedule().AddSystems(move, decay, reap)
	for range ticks {
		if err := schedule.RunOnce(storage); err != nil {
			return err
		}
	}

	kills, _ := depot.GetResource[Kills](storage)
	bark.For("depotprof").Info("profile finished",
		"ticks", ticks,
		"live", storage.Len(),
		"reaped", kills.Total,
	)
	return nil
}

func fatal(op string, err error) {
	bark.For("depotprof").Error("depotprof failed", bark.KeyOperation, op, bark.KeyError, err.Error())
	os.Exit(1)
}
