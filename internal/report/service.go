// Package report renders monthly spending summaries as PDF documents.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type billRow struct {
	InvoiceNumber string
	BillDate      time.Time
	TotalDue      float64
	LineItemCount int64
}

type chargeRow struct {
	ServiceNumber string
	PackageName   *string
	TotalCharge   float64
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Service assembles and renders monthly reports.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p ServiceParam) *Service {
	return &Service{db: p.DB, log: p.Log.Named("report.service")}
}

// Monthly renders the spending summary for one account and month.
func (s *Service) Monthly(ctx context.Context, accountID snowflake.ID, year int, month time.Month) (io.Reader, error) {
	var account accountdomain.ServiceAccount
	if err := s.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, accountdomain.ErrAccountNotFound
		}
		return nil, err
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	var bills []billRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT b.invoice_number, b.bill_date, b.total_due,
		        (SELECT COUNT(*) FROM line_items li WHERE li.bill_id = b.id) AS line_item_count
		 FROM bills b
		 WHERE b.service_account_id = ?
		   AND b.billing_period_start >= ? AND b.billing_period_start < ?
		   AND b.processing_status = 'completed'
		 ORDER BY b.bill_date ASC`,
		accountID, from, to,
	).Scan(&bills).Error
	if err != nil {
		return nil, err
	}

	var charges []chargeRow
	err = s.db.WithContext(ctx).Raw(
		`SELECT c.service_number, c.package_name, SUM(c.total_charge) AS total_charge
		 FROM service_number_monthly_charges c
		 JOIN service_numbers sn ON sn.id = c.service_number_id
		 WHERE sn.service_account_id = ?
		   AND c.billing_period_start >= ? AND c.billing_period_start < ?
		 GROUP BY c.service_number, c.package_name
		 ORDER BY total_charge DESC`,
		accountID, from, to,
	).Scan(&charges).Error
	if err != nil {
		return nil, err
	}

	return s.render(account, from, bills, charges)
}

func (s *Service) render(account accountdomain.ServiceAccount, period time.Time, bills []billRow, charges []chargeRow) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Monthly Spending Report", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(20,
		col.New(6).Add(
			text.New("Account: "+account.AccountName, props.Text{Top: 0}),
			text.New("Account number: "+account.AccountNumber, props.Text{Top: 4}),
			text.New("Provider: "+account.Provider, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Period: "+period.Format("January 2006"), props.Text{Top: 0}),
			text.New("Generated: "+time.Now().UTC().Format("2006-01-02"), props.Text{Top: 4}),
		),
	)

	var total float64
	for _, bill := range bills {
		total += bill.TotalDue
	}
	m.AddRow(12,
		text.NewCol(12, fmt.Sprintf("Total due: %.2f across %d bill(s)", total, len(bills)), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   3,
		}),
	)

	m.AddRow(10,
		text.NewCol(4, "Invoice", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Bill date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Services", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Total due", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, bill := range bills {
		m.AddRow(8,
			text.NewCol(4, bill.InvoiceNumber, props.Text{Size: 9}),
			text.NewCol(3, bill.BillDate.Format("2006-01-02"), props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", bill.LineItemCount), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, fmt.Sprintf("%.2f", bill.TotalDue), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		text.NewCol(12, "Charges by service number", props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Top:   4,
		}),
	)
	m.AddRow(10,
		text.NewCol(4, "Service number", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Package", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Charge", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, charge := range charges {
		packageName := ""
		if charge.PackageName != nil {
			packageName = *charge.PackageName
		}
		m.AddRow(8,
			text.NewCol(4, charge.ServiceNumber, props.Text{Size: 9}),
			text.NewCol(5, packageName, props.Text{Size: 9}),
			text.NewCol(3, fmt.Sprintf("%.2f", charge.TotalCharge), props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
