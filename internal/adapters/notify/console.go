package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// PipelineUpdated imprime el estado del pipeline en una línea por evento.
func (c *Console) PipelineUpdated(p *domain.TxPipeline) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][%s]", now, p.Action)
	for _, s := range p.Steps {
		fmt.Fprintf(&sb, " %s%s", stepIcon(s.Status), s.ID)
	}
	if p.TxHash != "" {
		fmt.Fprintf(&sb, " tx:%s", shortHash(p.TxHash))
	}
	if p.Failed() {
		fmt.Fprintf(&sb, "\n  !! %s", p.Err)
	} else if p.IsComplete {
		sb.WriteString(" done")
	}

	fmt.Fprintln(c.out, sb.String())
}

// ShowPositions imprime las posiciones con su estado de riesgo.
func (c *Console) ShowPositions(_ context.Context, positions []domain.Position, prices map[string]float64) error {
	now := time.Now().Format("15:04:05")
	if len(positions) == 0 {
		fmt.Fprintf(c.out, "[%s] no positions\n", now)
		return nil
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].HealthFactor < positions[j].HealthFactor
	})

	if !c.table {
		c.printPositionsCompact(now, positions)
		return nil
	}

	atRisk, liquidatable := countRisk(positions)
	fmt.Fprintf(c.out, "\n[%s] %d positions — at-risk:%d liquidatable:%d\n",
		now, len(positions), atRisk, liquidatable)

	table := tablewriter.NewWriter(c.out)
	table.Header("Offer", "Token", "Collateral", "Price", "Debt", "HF", "Liq price", "Maturity", "Status")

	for _, pos := range positions {
		price := prices[pos.CollateralToken.Symbol]
		table.Append(
			shortID(pos.OfferID),
			pos.CollateralToken.Symbol,
			fmt.Sprintf("%.4f", pos.CollateralAmount),
			fmt.Sprintf("%.2f", price),
			fmt.Sprintf("%.2f", pos.TotalDebt()),
			hfLabel(pos.HealthFactor),
			fmt.Sprintf("%.2f", pos.LiquidationPrice),
			pos.MaturityDate.Format("2006-01-02"),
			riskLabel(pos),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  HF = valor colateral / (deuda × umbral) | AT RISK < 1.2 | LIQUIDATE < 1.0")
	return nil
}

// printPositionsCompact imprime lo esencial en una línea por posición.
func (c *Console) printPositionsCompact(now string, positions []domain.Position) {
	var sb strings.Builder
	atRisk, liquidatable := countRisk(positions)
	fmt.Fprintf(&sb, "[%s] %d pos → risk:%d liq:%d", now, len(positions), atRisk, liquidatable)

	shown := 0
	for _, pos := range positions {
		if shown >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s debt:%.0f hf:%s",
			shortID(pos.OfferID), pos.CollateralToken.Symbol,
			pos.TotalDebt(), hfLabel(pos.HealthFactor))
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// ShowOffers imprime el libro de ofertas abiertas con su LTV solicitado.
func (c *Console) ShowOffers(_ context.Context, offers []domain.Offer, prices map[string]float64) error {
	now := time.Now().Format("15:04:05")
	if len(offers) == 0 {
		fmt.Fprintf(c.out, "[%s] no offers\n", now)
		return nil
	}

	borrow, lend := 0, 0
	for _, o := range offers {
		if o.Kind == domain.OfferBorrow {
			borrow++
		} else {
			lend++
		}
	}
	fmt.Fprintf(c.out, "\n[%s] %d offers — borrow:%d lend:%d\n", now, len(offers), borrow, lend)

	table := tablewriter.NewWriter(c.out)
	table.Header("Offer", "Kind", "Token", "Collateral", "Loan", "LTV", "Rate", "Days", "Status")

	for _, o := range offers {
		table.Append(
			shortID(o.ID),
			string(o.Kind),
			o.CollateralToken.Symbol,
			fmt.Sprintf("%.4f", o.CollateralAmount),
			fmt.Sprintf("%.2f", o.LoanAmount),
			ltvLabel(o, prices[o.CollateralToken.Symbol]),
			fmt.Sprintf("%.2f%%", float64(o.InterestRateBps)/100),
			fmt.Sprintf("%d", o.MaturityDays),
			string(o.Status),
		)
	}
	table.Render()
	return nil
}

// --- helpers ---

func stepIcon(s domain.StepStatus) string {
	switch s {
	case domain.StepComplete:
		return "+"
	case domain.StepActive:
		return ">"
	case domain.StepError:
		return "x"
	}
	return "."
}

// Un HF <= 0 significa que la lectura autoritativa aún no llegó;
// se muestra como desconocido, nunca como liquidable.
func countRisk(positions []domain.Position) (atRisk, liquidatable int) {
	for _, pos := range positions {
		if !pos.LedgerOpen || pos.HealthFactor <= 0 {
			continue
		}
		switch {
		case pos.HealthFactor < domain.LiquidatableHealthFactor:
			liquidatable++
		case pos.HealthFactor < domain.AtRiskHealthFactor:
			atRisk++
		}
	}
	return
}

func riskLabel(pos domain.Position) string {
	if !pos.LedgerOpen {
		return "CLOSED"
	}
	switch {
	case pos.HealthFactor <= 0:
		return "PENDING"
	case pos.HealthFactor < domain.LiquidatableHealthFactor:
		return "LIQUIDATE"
	case pos.HealthFactor < domain.AtRiskHealthFactor:
		return "AT RISK"
	}
	return "OK"
}

func hfLabel(hf float64) string {
	if hf <= 0 {
		return "?"
	}
	if hf >= 1e6 {
		return "INF"
	}
	return fmt.Sprintf("%.4f", hf)
}

// ltvLabel devuelve el LTV solicitado de la oferta al precio actual.
func ltvLabel(o domain.Offer, price float64) string {
	cv := o.CollateralAmount * price
	if cv <= 0 {
		return "?"
	}
	return fmt.Sprintf("%.1f%%", o.LoanAmount/cv*100)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12] + "..."
	}
	return h
}
