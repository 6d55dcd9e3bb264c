// Package auditor implements the profit-and-risk audit stage: walk the
// ranked candidates, apply the hard compliance vetoes and the margin floor,
// consult the fleet-exploration quota and pick the first fully compliant
// asset.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mobiis/cargodispatch/core/logger"
	"github.com/mobiis/cargodispatch/core/model"
	"github.com/mobiis/cargodispatch/core/quota"
)

// Config defines audit thresholds. The risk adjustment is an absolute
// deduction in the target price currency, applied only to new assets.
type Config struct {
	MinMargin         float64         `json:"min_margin"`
	IdealMargin       float64         `json:"ideal_margin"`
	NewAssetAgeDays   int             `json:"new_asset_age_days"`
	RiskAdjustmentBRL decimal.Decimal `json:"risk_adjustment_brl"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MinMargin <= 0 {
		c.MinMargin = 0.70
	}
	if c.IdealMargin <= 0 {
		c.IdealMargin = 0.75
	}
	if c.NewAssetAgeDays <= 0 {
		c.NewAssetAgeDays = 30
	}
	if !c.RiskAdjustmentBRL.IsPositive() {
		c.RiskAdjustmentBRL = decimal.NewFromInt(50)
	}
}

// RiskPLAuditor validates ranked candidates against compliance and P&L
// rules. Safe for concurrent use; the only shared state is the injected
// quota counter.
type RiskPLAuditor struct {
	cfg   Config
	quota quota.ExplorationQuota
	log   logger.Logger
	now   func() time.Time
}

// New creates an auditor.
func New(cfg Config, q quota.ExplorationQuota, log logger.Logger) (*RiskPLAuditor, error) {
	if q == nil {
		return nil, errors.New("auditor: nil quota")
	}
	if log == nil {
		return nil, errors.New("auditor: nil logger")
	}
	cfg.SetDefaults()
	return &RiskPLAuditor{cfg: cfg, quota: q, log: log, now: time.Now}, nil
}

// Audit walks the candidates in tracker rank order and returns the decision
// for the request. Business rejections are decision values, never errors.
func (a *RiskPLAuditor) Audit(ctx context.Context, req model.LoadRequest, tracking model.TrackingResult) model.DispatchDecision {
	start := a.now()
	dec := model.DispatchDecision{
		LoadID:       req.ID,
		Status:       model.StatusRejected,
		SearchMethod: tracking.Method,
	}

	if len(tracking.Candidates) == 0 {
		dec.Rejections = []model.Rejection{{
			Reason: model.ReasonNoCandidatesInRange,
			Detail: fmt.Sprintf("no candidates in range (%.0fkm)", tracking.RadiusKm),
		}}
		dec.RankingQuality = 1.0
		dec.AuditLatency = a.now().Sub(start)
		return dec
	}

	var rels []float64
	for i, c := range tracking.Candidates {
		if err := ctx.Err(); err != nil {
			break
		}
		margin := a.margin(req, c)
		rels = append(rels, relevance(margin, a.cfg.IdealMargin))

		// Insurance first: the hard veto costs nothing to check and is
		// never softened by margin or rank.
		if !c.Asset.InsuranceCurrent(a.now()) {
			a.log.Warnf("asset %s vetoed: insurance expired %s", c.Asset.Plate, c.Asset.InsuranceExpiry.Format("2006-01-02"))
			dec.Rejections = append(dec.Rejections, model.Rejection{
				Plate:  c.Asset.Plate,
				Reason: model.ReasonInsuranceExpired,
				Detail: fmt.Sprintf("coverage expired %s", c.Asset.InsuranceExpiry.Format("2006-01-02")),
			})
			continue
		}

		if margin < a.cfg.MinMargin {
			dec.Rejections = append(dec.Rejections, model.Rejection{
				Plate:  c.Asset.Plate,
				Reason: model.ReasonMarginInsufficient,
				Detail: fmt.Sprintf("margin %.2f%% below floor %.2f%%", margin*100, a.cfg.MinMargin*100),
			})
			continue
		}

		isNew := c.Asset.IsNew(a.cfg.NewAssetAgeDays)
		if isNew {
			// The risk discount is already embedded in the margin above;
			// the quota is the only remaining gate for new assets, and
			// acquiring it is the approval-time consumption.
			if !a.quota.TryAcquireNew() {
				dec.Rejections = append(dec.Rejections, model.Rejection{
					Plate:  c.Asset.Plate,
					Reason: model.ReasonQuotaExhausted,
					Detail: "fleet exploration window has no room",
				})
				continue
			}
		} else {
			a.quota.RecordEstablished()
		}

		asset := c.Asset
		dec.Status = model.StatusApproved
		dec.Asset = &asset
		dec.Margin = margin
		dec.NewAsset = isNew
		dec.RankingQuality = rankingQuality(rels)
		dec.AuditLatency = a.now().Sub(start)
		a.log.Infof("load %s approved: asset %s margin %.2f%% new=%t rank=%d",
			req.ID, asset.Plate, margin*100, isNew, i+1)
		return dec
	}

	dec.Rejections = append(dec.Rejections, model.Rejection{
		Reason: model.ReasonNoViableCandidate,
		Detail: fmt.Sprintf("%d candidates evaluated, none viable", len(tracking.Candidates)),
	})
	dec.RankingQuality = rankingQuality(rels)
	dec.AuditLatency = a.now().Sub(start)
	a.log.Warnf("load %s rejected: no viable candidate among %d", req.ID, len(tracking.Candidates))
	return dec
}

// margin computes the contribution margin for the pair: target minus
// variable cost minus the new-asset risk adjustment, over target.
func (a *RiskPLAuditor) margin(req model.LoadRequest, c model.Candidate) float64 {
	cost := c.Asset.CostPerKm.Mul(decimal.NewFromFloat(c.DistanceKm))
	if c.Asset.IsNew(a.cfg.NewAssetAgeDays) {
		cost = cost.Add(a.cfg.RiskAdjustmentBRL)
	}
	m, _ := req.TargetPrice.Sub(cost).Div(req.TargetPrice).Float64()
	return m
}
