package room

import (
	"math"
	"math/rand"

	"github.com/4cecoder/raceroom/models"
)

// Start band on the track, in world units. x is negated.
const (
	spawnBandMinX = 109
	spawnBandMaxX = 115
	spawnBandMinZ = 215
	spawnBandMaxZ = 220
	spawnHeight   = 0.75
	// slotRotationW is the w component the fixed-slot grid has always
	// shipped with.
	slotRotationW = 0.5731936903702084
)

var spawnHeading = math.Pi/2 + 0.35

func randomInt(r *rand.Rand, min, max int) int {
	return min + r.Intn(max-min+1)
}

func bandPosition(r *rand.Rand) models.Vector3 {
	return models.Vector3{
		X: -float64(randomInt(r, spawnBandMinX, spawnBandMaxX)),
		Y: spawnHeight,
		Z: float64(randomInt(r, spawnBandMinZ, spawnBandMaxZ)),
	}
}

// placeInBand puts p at a random start-band spot facing down the track.
func placeInBand(p *models.Player, r *rand.Rand, w float64) {
	p.Position = bandPosition(r)
	p.SpawnPosition = p.Position
	p.Rotation.Set(0, spawnHeading, 0, w)
	p.AngularVelocity = models.Vector3{}
}

// advanceSpawn picks the spawn point after used: the next one in cyclic
// order that nobody holds, or the plain successor when all are held.
func advanceSpawn(points []models.Vector3, used models.Vector3, held func(models.Vector3) bool) models.Vector3 {
	if len(points) == 0 {
		return used
	}
	start := -1
	for i, pt := range points {
		if pt == used {
			start = i
			break
		}
	}
	for step := 1; step <= len(points); step++ {
		candidate := points[(start+step+len(points))%len(points)]
		if !held(candidate) {
			return candidate
		}
	}
	return points[(start+1+len(points))%len(points)]
}
