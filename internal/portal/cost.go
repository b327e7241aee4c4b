package portal

import (
	"math"

	"github.com/drfirst/go-rxportal/internal/domain/prescription"
)

// CostLine is one prescription's estimate
type CostLine struct {
	PrescriptionID string  `json:"prescriptionId"`
	Name           string  `json:"name"`
	HasCost        bool    `json:"hasCost"`
	Retail         float64 `json:"retail"`
	WithInsurance  float64 `json:"withInsurance"`
	Copay          float64 `json:"copay"`
	Savings        float64 `json:"savings"`
}

// CostSummary is the cost estimation view. Totals only include priced items.
type CostSummary struct {
	Items              []CostLine `json:"items"`
	TotalRetail        float64    `json:"totalRetail"`
	TotalWithInsurance float64    `json:"totalWithInsurance"`
	TotalCopay         float64    `json:"totalCopay"`
	TotalSavings       float64    `json:"totalSavings"`
}

// CostSummary estimates what the patient pays with and without insurance
func (s *Service) CostSummary() CostSummary {
	return summarize(s.prescriptions.List(prescription.Filter{}))
}

func summarize(items []prescription.Prescription) CostSummary {
	out := CostSummary{Items: make([]CostLine, 0, len(items))}
	for _, rx := range items {
		line := CostLine{PrescriptionID: rx.ID, Name: rx.Name}
		if rx.Cost != nil {
			line.HasCost = true
			line.Retail = rx.Cost.Retail
			line.WithInsurance = rx.Cost.WithInsurance
			line.Copay = rx.Cost.Copay
			line.Savings = cents(rx.Cost.Retail - rx.Cost.WithInsurance)

			out.TotalRetail += line.Retail
			out.TotalWithInsurance += line.WithInsurance
			out.TotalCopay += line.Copay
		}
		out.Items = append(out.Items, line)
	}
	out.TotalRetail = cents(out.TotalRetail)
	out.TotalWithInsurance = cents(out.TotalWithInsurance)
	out.TotalCopay = cents(out.TotalCopay)
	out.TotalSavings = cents(out.TotalRetail - out.TotalWithInsurance)
	return out
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
