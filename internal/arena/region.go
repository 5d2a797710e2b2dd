package arena

// Vec3 is a block position in world coordinates.
type Vec3 struct {
	X, Y, Z int
}

// CuboidRegion is an axis aligned box, both corners inclusive.
type CuboidRegion struct {
	World string
	Min   Vec3
	Max   Vec3
}

// NewCuboidRegion orders the corners so Min <= Max on every axis.
func NewCuboidRegion(world string, a, b Vec3) CuboidRegion {
	return CuboidRegion{
		World: world,
		Min:   Vec3{min(a.X, b.X), min(a.Y, b.Y), min(a.Z, b.Z)},
		Max:   Vec3{max(a.X, b.X), max(a.Y, b.Y), max(a.Z, b.Z)},
	}
}

func (r CuboidRegion) Contains(world string, p Vec3) bool {
	return world == r.World &&
		p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y &&
		p.Z >= r.Min.Z && p.Z <= r.Max.Z
}

func (r CuboidRegion) Volume() int {
	return (r.Max.X - r.Min.X + 1) * (r.Max.Y - r.Min.Y + 1) * (r.Max.Z - r.Min.Z + 1)
}
