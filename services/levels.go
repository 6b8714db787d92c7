package services

// LevelPolicy maps lifetime XP to a level. Pure and total: no side
// effects, safe to call unboundedly, level >= 1 for any totalXP >= 0.
//
// Policy: advancing from level n to n+1 costs BaseXP * n, i.e. 1000 XP
// to reach level 2, 2000 more to reach level 3, and so on.
type LevelPolicy struct {
	BaseXP int64
}

func NewLevelPolicy(baseXP int64) LevelPolicy {
	if baseXP <= 0 {
		baseXP = 1000
	}
	return LevelPolicy{BaseXP: baseXP}
}

// XPToAdvance returns the XP required to go from level to level+1.
func (p LevelPolicy) XPToAdvance(level int) int64 {
	if level < 1 {
		level = 1
	}
	return p.BaseXP * int64(level)
}

// ThresholdFor returns the cumulative lifetime XP required to reach level.
func (p LevelPolicy) ThresholdFor(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	// sum of BaseXP * l for l = 1..level-1
	return p.BaseXP * n * (n + 1) / 2
}

// LevelFor returns the level reached with the given lifetime XP.
func (p LevelPolicy) LevelFor(totalXP int64) int {
	if totalXP < 0 {
		return 1
	}
	level := 1
	for totalXP >= p.ThresholdFor(level+1) {
		level++
	}
	return level
}

// Snapshot derives the display values for a lifetime XP total:
// level, XP within the level, and progress fraction clamped to [0,1].
func (p LevelPolicy) Snapshot(totalXP int64) (level int, currentXP int64, fraction float64) {
	if totalXP < 0 {
		totalXP = 0
	}
	level = p.LevelFor(totalXP)
	currentXP = totalXP - p.ThresholdFor(level)
	span := p.XPToAdvance(level)
	fraction = float64(currentXP) / float64(span)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return level, currentXP, fraction
}
