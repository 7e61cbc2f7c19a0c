package factories

import (
	"context"
	"math/rand"
	"time"

	"github.com/jaswdr/faker"
	"github.com/paulmach/orb"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

var fake = faker.New()

// SensorFactory fabricates Meet je stad readings scattered over the
// region set's bounding box, for running without the live API.
type SensorFactory struct {
	set     *models.RegionSet
	rng     *rand.Rand
	sensors int
}

func NewSensorFactory(set *models.RegionSet, sensors int, seed int64) *SensorFactory {
	if sensors <= 0 {
		sensors = 25
	}
	return &SensorFactory{
		set:     set,
		rng:     rand.New(rand.NewSource(seed)),
		sensors: sensors,
	}
}

// Fetch generates one reading per fake sensor inside the window. It
// satisfies the same contract as the live client.
func (f *SensorFactory) Fetch(ctx context.Context, start, end time.Time) ([]models.SensorReading, error) {
	bound := f.bound()
	span := end.Sub(start)

	readings := make([]models.SensorReading, 0, f.sensors)
	for i := 0; i < f.sensors; i++ {
		lon := bound.Min[0] + f.rng.Float64()*(bound.Max[0]-bound.Min[0])
		lat := bound.Min[1] + f.rng.Float64()*(bound.Max[1]-bound.Min[1])

		temp := 12.0 + f.rng.Float64()*14.0
		hum := 40.0 + f.rng.Float64()*50.0

		readings = append(readings, models.SensorReading{
			SensorID:    1000 + i,
			Timestamp:   start.Add(time.Duration(f.rng.Int63n(int64(span)))),
			Longitude:   lon,
			Latitude:    lat,
			Temperature: &temp,
			Humidity:    &hum,
			Firmware:    fake.App().Version(),
		})
	}
	return readings, nil
}

func (f *SensorFactory) bound() orb.Bound {
	bound := orb.Bound{Min: orb.Point{180, 90}, Max: orb.Point{-180, -90}}
	for _, r := range f.set.Regions {
		bound = bound.Union(r.Geometry.Bound())
	}
	return bound
}

