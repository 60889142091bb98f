package main

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyrisk/internal/application/session"
	"github.com/alejandrodnm/polyrisk/internal/domain"
	"github.com/alejandrodnm/polyrisk/internal/kelly"
)

type simParams struct {
	Trades  int
	Seed    int64
	PerSec  float64
	MaxEdge float64
}

type simSummary struct {
	Signals  int
	Approved int
	Rejected int
	Wins     int
	Losses   int
}

// simulator genera una corriente sintética de señales y las resuelve
// contra un mercado con un pequeño edge real oculto. Sirve para ejercitar
// el pipeline completo (edge → sizing → gate → settlement) sin exchange.
type simulator struct {
	sess   *session.Session
	coins  []string
	rng    *rand.Rand
	params simParams
}

func newSimulator(sess *session.Session, groups domain.GroupMap, p simParams) *simulator {
	coins := make([]string, 0, len(groups)+1)
	for coin := range groups {
		coins = append(coins, coin)
	}
	// Un par de coins fuera de todo grupo para ejercitar "unknown".
	coins = append(coins, "DOGE", "AVAX")
	sort.Strings(coins)

	return &simulator{
		sess:   sess,
		coins:  coins,
		rng:    rand.New(rand.NewSource(p.Seed)),
		params: p,
	}
}

// run alimenta señales a ritmo fijo hasta agotar el presupuesto o el contexto.
func (s *simulator) run(ctx context.Context) (simSummary, error) {
	limiter := rate.NewLimiter(rate.Limit(s.params.PerSec), 1)
	var sum simSummary

	for i := 0; i < s.params.Trades; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return sum, err
		}

		sig := s.nextSignal()
		sum.Signals++

		d := s.sess.Evaluate(sig)
		if !d.Approved {
			sum.Rejected++
			slog.Debug("signal rejected",
				"coin", sig.Coin,
				"side", sig.Side,
				"price", sig.EntryPrice,
				"reason", d.Reason,
			)
			continue
		}
		sum.Approved++

		id := s.sess.Opened(sig, d.SizeUSD)
		won, pnlUSD, pnlPct := s.settle(sig, d.SizeUSD)
		if won {
			sum.Wins++
		} else {
			sum.Losses++
		}

		slog.Info("trade settled",
			"coin", sig.Coin,
			"side", sig.Side,
			"price", sig.EntryPrice,
			"size", d.SizeUSD,
			"won", won,
			"pnl", pnlUSD,
		)
		s.sess.Closed(ctx, session.Settlement{
			PositionID: id,
			Coin:       sig.Coin,
			Side:       sig.Side,
			EntryPrice: sig.EntryPrice,
			Won:        won,
			PnLUSD:     pnlUSD,
			PnLPct:     pnlPct,
			EdgeScore:  d.EdgeScore,
		})
	}
	return sum, nil
}

// nextSignal fabrica una señal con inputs de calidad plausibles. Los
// precios se concentran en el rango medio, donde el sizing tiene sentido.
func (s *simulator) nextSignal() session.Signal {
	coin := s.coins[s.rng.Intn(len(s.coins))]
	side := domain.SideYes
	if s.rng.Float64() < 0.5 {
		side = domain.SideNo
	}
	price := 0.20 + s.rng.Float64()*0.60

	return session.Signal{
		Coin:           coin,
		Side:           side,
		EntryPrice:     price,
		MarketID:       "sim-" + strings.ToLower(coin),
		Velocity:       s.rng.Float64() * 0.5,
		VelocityMax:    0.5,
		MTFConfidence:  0.4 + s.rng.Float64()*0.6,
		BookConfidence: 0.4 + s.rng.Float64()*0.6,
		SentimentMult:  0.8 + s.rng.Float64()*0.2,
		VolumeRatio:    s.rng.Float64() * 2,
	}
}

// settle resuelve el trade contra una probabilidad real = implícita del
// mercado + un edge oculto, de modo que el tracker converge con los datos.
func (s *simulator) settle(sig session.Signal, sizeUSD float64) (bool, float64, float64) {
	implied := sig.EntryPrice
	if sig.Side == domain.SideNo {
		implied = 1 - sig.EntryPrice
	}
	hiddenEdge := 0.03
	if s.params.MaxEdge > 0 && hiddenEdge > s.params.MaxEdge {
		hiddenEdge = s.params.MaxEdge
	}
	pWin := implied + hiddenEdge

	won := s.rng.Float64() < pWin
	if won {
		payout := sizeUSD * kelly.NetOdds(sig.EntryPrice, sig.Side)
		return true, payout, payout / sizeUSD
	}
	return false, -sizeUSD, -1
}
