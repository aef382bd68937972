// Package winchance turns skill ratings of two teams into a win probability.
package winchance

import "github.com/park285/winchance-agent/internal/domain"

// Undecided is returned when neither side has a usable rating.
const Undecided = 50.0

// Average is the mean of the positive ratings, 0 when there are none.
func Average(ratings []float64) float64 {
	var sum float64
	n := 0
	for _, r := range ratings {
		if r > 0 {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Estimate returns the ally win chance in percent.
func Estimate(ally, enemy []float64) float64 {
	a := Average(ally)
	e := Average(enemy)
	if a == 0 && e == 0 {
		return Undecided
	}
	chance := 100 * a / (a + e)
	if chance < 0 {
		return 0
	}
	if chance > 100 {
		return 100
	}
	return chance
}

// Split divides the rated participants into ally and enemy rating lists.
// Participants without an entry in ratings are skipped.
func Split(participants []domain.Participant, playerTeam int, ratings map[int64]float64) (ally, enemy []float64) {
	for _, p := range participants {
		if p.AccountID == 0 {
			continue
		}
		r, ok := ratings[p.AccountID]
		if !ok {
			continue
		}
		if p.Team == playerTeam {
			ally = append(ally, r)
		} else {
			enemy = append(enemy, r)
		}
	}
	return ally, enemy
}

// AccountIDs lists the participants with a known account, allies first.
func AccountIDs(participants []domain.Participant, playerTeam int) []int64 {
	ids := make([]int64, 0, len(participants))
	for _, p := range participants {
		if p.AccountID != 0 && p.Team == playerTeam {
			ids = append(ids, p.AccountID)
		}
	}
	for _, p := range participants {
		if p.AccountID != 0 && p.Team != playerTeam {
			ids = append(ids, p.AccountID)
		}
	}
	return ids
}

// Result bundles an estimate with the team averages shown next to it.
type Result struct {
	Chance   float64
	AllyAvg  float64
	EnemyAvg float64
	Rated    int
}

// Compute runs Split, Estimate and Average in one pass.
func Compute(participants []domain.Participant, playerTeam int, ratings map[int64]float64) Result {
	ally, enemy := Split(participants, playerTeam, ratings)
	return Result{
		Chance:   Estimate(ally, enemy),
		AllyAvg:  Average(ally),
		EnemyAvg: Average(enemy),
		Rated:    len(ally) + len(enemy),
	}
}
