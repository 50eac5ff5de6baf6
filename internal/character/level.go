package character

const xpStep = 100

// ExperienceForLevel is the total experience needed to reach level.
// Level n needs 100*n*(n-1)/2, so each level costs 100 more than the previous one.
func ExperienceForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return xpStep * level * (level - 1) / 2
}

// LevelForExperience is the highest level reached with xp total experience.
func LevelForExperience(xp int) int {
	level := 1
	for ExperienceForLevel(level+1) <= xp {
		level++
	}
	return level
}
