/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

type Achievement struct {
	Score   int    `json:"score"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

var Achievements = []Achievement{
	{Score: 1, Title: "First point!", Message: "Great start!"},
	{Score: 5, Title: "5 points!", Message: "On a roll!"},
	{Score: 10, Title: "10 points!", Message: "On fire!"},
	{Score: 20, Title: "20 points!", Message: "Champion!"},
	{Score: 50, Title: "50 points!", Message: "Legend!"},
	{Score: 100, Title: "100 points!", Message: "World master!"},
}

// AchievementFor returns the milestone reached at exactly score.
func AchievementFor(score int) (Achievement, bool) {
	for _, a := range Achievements {
		if a.Score == score {
			return a, true
		}
	}
	return Achievement{}, false
}
