package services

// LevelThreshold is one row of the fixed level table. Cumulative is the
// total XP required to hold the level. The table is a versioned
// contract shared with clients that render level progress — changing it
// changes observable behavior for every stored total_xp.
type LevelThreshold struct {
	Level      int
	Title      string
	Cumulative int64
}

// LevelTable is ordered by Cumulative ascending, starting at level 1
// with 0 XP.
var LevelTable = []LevelThreshold{
	{1, "Nocoiner", 0},
	{2, "Curious Cat", 100},
	{3, "Pleb", 250},
	{4, "Shrimp", 500},
	{5, "Crab", 1000},
	{6, "Fish", 2500},
	{7, "Dolphin", 5000},
	{8, "Shark", 10000},
	{9, "Orca", 25000},
	{10, "Whale", 50000},
}

// LevelInfo is the computed progress for a given total XP.
type LevelInfo struct {
	Level       int    `json:"level"`
	Title       string `json:"title"`
	XPIntoLevel int64  `json:"xp_into_level"`
	XPForLevel  int64  `json:"xp_for_level"` // 0 at the max level
}

// ComputeLevel resolves total XP against the fixed table: the current
// level is the highest threshold whose cumulative requirement is
// <= totalXP. Pure function of its inputs — no hidden state.
func ComputeLevel(totalXP int64) LevelInfo {
	if totalXP < 0 {
		totalXP = 0
	}

	current := LevelTable[0]
	var next *LevelThreshold
	for i := range LevelTable {
		if totalXP >= LevelTable[i].Cumulative {
			current = LevelTable[i]
			if i+1 < len(LevelTable) {
				next = &LevelTable[i+1]
			} else {
				next = nil
			}
		}
	}

	info := LevelInfo{
		Level:       current.Level,
		Title:       current.Title,
		XPIntoLevel: totalXP - current.Cumulative,
	}
	if next != nil {
		info.XPForLevel = next.Cumulative - current.Cumulative
	}
	return info
}
