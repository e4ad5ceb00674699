package reports

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/sandoghapp/sandogh/internal/apperr"
	"github.com/sandoghapp/sandogh/internal/modules/ledger"
	"github.com/sandoghapp/sandogh/pkg/jalali"
)

// trendPeriod is the SMA window over daily net flows
const trendPeriod = 7

// Service computes period reports over the ledger
type Service struct {
	ledger *ledger.Service
	cache  *SnapshotCache
	log    zerolog.Logger
}

// NewService creates a new report service. The cache may be nil, in which
// case every report is computed from scratch.
func NewService(ledgerService *ledger.Service, cache *SnapshotCache, log zerolog.Logger) *Service {
	return &Service{
		ledger: ledgerService,
		cache:  cache,
		log:    log.With().Str("service", "reports").Logger(),
	}
}

// DailySummary aggregates one Jalali day
func (s *Service) DailySummary(date jalali.Date) (*Summary, error) {
	start, end, err := jalali.DayRange(date)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidDate, "invalid date "+date.String(), err)
	}

	key := "daily:" + date.String()
	if summary, ok := s.cached(key); ok {
		return summary, nil
	}

	summary, err := s.summarize(date.String(), start, end)
	if err != nil {
		return nil, err
	}

	s.store(key, summary)
	return summary, nil
}

// MonthlySummary aggregates one Jalali month
func (s *Service) MonthlySummary(year, month int) (*Summary, error) {
	start, end, err := jalali.MonthRange(year, month)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidDate, fmt.Sprintf("invalid month %04d/%02d", year, month), err)
	}

	period := fmt.Sprintf("%04d/%02d", year, month)
	key := "monthly:" + period
	if summary, ok := s.cached(key); ok {
		return summary, nil
	}

	summary, err := s.summarize(period, start, end)
	if err != nil {
		return nil, err
	}

	s.store(key, summary)
	return summary, nil
}

// summarize aggregates the [start, end) Gregorian range by kind
func (s *Service) summarize(period string, start, end time.Time) (*Summary, error) {
	transactions, err := s.ledger.List(ledger.ListFilters{From: &start, To: &end})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Period: period,
		ByKind: make(map[string]KindTotals),
	}

	for _, t := range transactions {
		totals := summary.ByKind[string(t.Kind)]
		totals.Count++
		totals.TotalAmount += t.Amount
		summary.ByKind[string(t.Kind)] = totals

		switch t.Kind {
		case ledger.KindReceipt:
			summary.TotalIncome += t.Amount
		case ledger.KindPayment:
			summary.TotalExpense += t.Amount
		}
	}
	summary.Net = summary.TotalIncome - summary.TotalExpense

	return summary, nil
}

// CashFlow builds the day-by-day flow series for a Gregorian [start, end)
// range. Days without transactions appear with zero flows so the running
// balance is continuous. Recomputing over the same transaction set always
// yields the same series.
func (s *Service) CashFlow(start, end time.Time) (*CashFlowReport, error) {
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC().Truncate(24 * time.Hour)
	if !end.After(start) {
		return nil, apperr.New(apperr.ErrValidation, "end must be after start", nil)
	}

	key := fmt.Sprintf("cashflow:%s:%s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	if s.cache != nil {
		var report CashFlowReport
		if ok, err := s.cache.Get(key, &report); err == nil && ok {
			return &report, nil
		}
	}

	transactions, err := s.ledger.List(ledger.ListFilters{From: &start, To: &end})
	if err != nil {
		return nil, err
	}

	type flows struct{ income, expense int64 }
	byDay := make(map[string]flows)
	for _, t := range transactions {
		day := t.OccurredAt.UTC().Format("2006-01-02")
		f := byDay[day]
		switch t.Kind {
		case ledger.KindReceipt:
			f.income += t.Amount
		case ledger.KindPayment:
			f.expense += t.Amount
		}
		byDay[day] = f
	}

	report := &CashFlowReport{
		Start: start.Format("2006-01-02"),
		End:   end.Format("2006-01-02"),
	}

	var running int64
	var netFlows []float64
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		f := byDay[day.Format("2006-01-02")]
		net := f.income - f.expense
		running += net

		report.Days = append(report.Days, CashFlowPoint{
			Date:           day.Format("2006-01-02"),
			JalaliDate:     jalali.FromTime(day).String(),
			Income:         f.income,
			Expense:        f.expense,
			NetFlow:        net,
			RunningBalance: running,
		})
		netFlows = append(netFlows, float64(net))
	}

	if len(netFlows) > 0 {
		report.Stats.MeanNetFlow = stat.Mean(netFlows, nil)
	}
	// StdDev needs at least two samples; with one it is NaN, which JSON
	// cannot encode
	if len(netFlows) > 1 {
		report.Stats.StdDevNetFlow = stat.StdDev(netFlows, nil)
	}
	if len(netFlows) >= trendPeriod {
		report.Trend = talib.Sma(netFlows, trendPeriod)
		report.Period = trendPeriod
	}

	if s.cache != nil {
		if err := s.cache.Set(key, report); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache cash-flow report")
		}
	}

	return report, nil
}

func (s *Service) cached(key string) (*Summary, bool) {
	if s.cache == nil {
		return nil, false
	}
	var summary Summary
	ok, err := s.cache.Get(key, &summary)
	if err != nil || !ok {
		return nil, false
	}
	return &summary, true
}

func (s *Service) store(key string, summary *Summary) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(key, summary); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache summary")
	}
}
