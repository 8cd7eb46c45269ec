package analytics

import (
	"math"
	"time"

	"github.com/BearBump/ParcelDeck/internal/models"
)

// Агрегаты считаются по полному снапшоту хранилища за один проход;
// обе функции чистые и хранилище не трогают.

type MonthlyStats struct {
	Month         string `json:"month"`
	TotalPackages int    `json:"totalPackages"`
	Delivered     int    `json:"delivered"`
	InTransit     int    `json:"inTransit"`
}

type CourierStat struct {
	CarrierCode    string `json:"carrierCode"`
	CarrierName    string `json:"carrierName"`
	Count          int    `json:"count"`
	Percentage     int    `json:"percentage"`
	AvgTransitDays *int   `json:"avgTransitDays,omitempty"`
}

// MonthlyStatsFor фильтрует треки по календарному месяцу createdAt
// (год+месяц, не окно в 30 дней).
func MonthlyStatsFor(snapshot []*models.Tracking, month time.Time) MonthlyStats {
	st := MonthlyStats{Month: month.Format("2006-01")}

	y, m := month.Year(), month.Month()
	for _, t := range snapshot {
		created := t.CreatedAt.UTC()
		if created.Year() != y || created.Month() != m {
			continue
		}
		st.TotalPackages++
		switch t.Status {
		case models.StatusDelivered:
			st.Delivered++
		case models.StatusInTransit, models.StatusOutForDelivery:
			st.InTransit++
		}
	}
	return st
}

// CourierDistribution группирует снапшот по коду перевозчика в порядке
// первого появления. Проценты округляются независимо и в сумме могут
// не давать ровно 100.
func CourierDistribution(snapshot []*models.Tracking) []CourierStat {
	if len(snapshot) == 0 {
		return []CourierStat{}
	}

	type group struct {
		stat         CourierStat
		transitSum   int
		transitCount int
	}

	var order []string
	groups := map[string]*group{}
	for _, t := range snapshot {
		g, ok := groups[t.CarrierCode]
		if !ok {
			g = &group{stat: CourierStat{CarrierCode: t.CarrierCode, CarrierName: t.CarrierName}}
			groups[t.CarrierCode] = g
			order = append(order, t.CarrierCode)
		}
		g.stat.Count++
		if t.Status == models.StatusDelivered && t.TransitDays > 0 {
			g.transitSum += t.TransitDays
			g.transitCount++
		}
	}

	total := len(snapshot)
	out := make([]CourierStat, 0, len(order))
	for _, code := range order {
		g := groups[code]
		g.stat.Percentage = int(math.Round(float64(g.stat.Count) / float64(total) * 100))
		if g.transitCount > 0 {
			avg := int(math.Round(float64(g.transitSum) / float64(g.transitCount)))
			g.stat.AvgTransitDays = &avg
		}
		out = append(out, g.stat)
	}
	return out
}
