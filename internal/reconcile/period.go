package reconcile

import (
	"fmt"
	"time"

	"cajadiaria/backend/internal/domain"
)

// PeriodInput feeds BuildPeriods. Snapshots are keyed by ledger day.
type PeriodInput struct {
	Now           time.Time
	Location      *time.Location
	Snapshots     map[string]domain.DaySnapshot
	Live          domain.Categories
	ExpensesByDay map[string]int64
}

// BuildPeriods assembles the chart views. A stored snapshot always wins;
// without one only the open day is rebuilt from live orders and any other day
// reads as zero so a missed close stays visible.
func BuildPeriods(in PeriodInput) domain.PeriodStructure {
	loc := in.Location
	if loc == nil {
		loc = time.FixedZone("COT", int(BusinessOffset/time.Second))
	}
	now := in.Now.In(loc)
	today := now.Format(DayLayout)

	point := func(day string) domain.DayPoint {
		p := domain.DayPoint{Date: day, Expenses: in.ExpensesByDay[day]}
		if snap, ok := in.Snapshots[day]; ok {
			p.Categories = snap.Categories
			p.Closed = true
		} else if day == today {
			p.Categories = in.Live
			p.Live = true
		}
		p.TotalIncome = p.Categories.Total()
		return p
	}

	out := domain.PeriodStructure{Today: point(today)}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	for i := 6; i >= 0; i-- {
		out.Last7Days = append(out.Last7Days, point(midnight.AddDate(0, 0, -i).Format(DayLayout)))
	}

	for d := 1; d <= daysIn(now.Year(), now.Month(), loc); d++ {
		day := time.Date(now.Year(), now.Month(), d, 0, 0, 0, 0, loc).Format(DayLayout)
		out.ThisMonth = append(out.ThisMonth, point(day))
	}

	for m := time.January; m <= time.December; m++ {
		month := domain.MonthPoint{MonthKey: fmt.Sprintf("%04d-%02d", now.Year(), int(m))}
		for d := 1; d <= daysIn(now.Year(), m, loc); d++ {
			day := time.Date(now.Year(), m, d, 0, 0, 0, 0, loc).Format(DayLayout)
			p := point(day)
			if !p.Closed && !p.Live {
				continue
			}
			month.Categories = month.Categories.Plus(p.Categories)
			month.Expenses += p.Expenses
		}
		month.TotalIncome = month.Categories.Total()
		out.ThisYear = append(out.ThisYear, month)
	}
	return out
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
