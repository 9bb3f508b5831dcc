package models

import (
	"context"
	"fmt"
	"io"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/xuri/excelize/v2"
)

type agentAllocationRow struct {
	AgentId               int     `json:"agent_id"`
	BusinessName          string  `json:"business_name"`
	FullName              string  `json:"full_name"`
	VerificationStatus    string  `json:"verification_status"`
	PaymentStatus         string  `json:"payment_status"`
	LastRequestAssignedAt *string `json:"last_request_assigned_at"`
	RequestsHandled       int     `json:"requests_handled"`
	OpenAssigned          int     `json:"open_assigned"`
	Completed             int     `json:"completed"`
}

func getAgentAllocationReport(ctx context.Context) ([]*agentAllocationRow, error) {

	sql := `
		SELECT a.id AS agent_id,
			a.business_name,
			u.full_name,
			a.verification_status,
			a.payment_status,
			a.last_request_assigned_at,
			a.requests_handled,
			SUM(CASE WHEN sr.status = 'assigned' THEN 1 ELSE 0 END) AS open_assigned,
			SUM(CASE WHEN sr.status = 'completed' THEN 1 ELSE 0 END) AS completed
		FROM agents a
		JOIN users u ON u.id = a.user_id
		LEFT JOIN service_requests sr ON sr.assigned_agent_id = a.id
		GROUP BY a.id, a.business_name, u.full_name, a.verification_status,
			a.payment_status, a.last_request_assigned_at, a.requests_handled
		ORDER BY a.last_request_assigned_at ASC, a.id ASC`

	db := config.GetDB()
	var records []*agentAllocationRow
	if err := db.WithContext(ctx).Raw(sql).Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ExportAllocationExcel writes the admin allocation report: one row per
// agent, in their current round-robin queue position.
func ExportAllocationExcel(ctx context.Context, w io.Writer) error {

	f := excelize.NewFile()
	_, err := f.NewSheet("Sheet1")
	if err != nil {
		return err
	}
	data, err := getAgentAllocationReport(ctx)
	if err != nil {
		return err
	}

	// Add headers
	f.SetCellValue("Sheet1", "A1", "AgentId")
	f.SetCellValue("Sheet1", "B1", "BusinessName")
	f.SetCellValue("Sheet1", "C1", "FullName")
	f.SetCellValue("Sheet1", "D1", "Verification")
	f.SetCellValue("Sheet1", "E1", "Payment")
	f.SetCellValue("Sheet1", "F1", "LastAssigned")
	f.SetCellValue("Sheet1", "G1", "RequestsHandled")
	f.SetCellValue("Sheet1", "H1", "OpenAssigned")
	f.SetCellValue("Sheet1", "I1", "Completed")

	// Add data
	for i, d := range data {
		lastAssigned := "never"
		if d.LastRequestAssignedAt != nil {
			lastAssigned = *d.LastRequestAssignedAt
		}
		f.SetCellValue("Sheet1", "A"+fmt.Sprint(i+2), d.AgentId)
		f.SetCellValue("Sheet1", "B"+fmt.Sprint(i+2), d.BusinessName)
		f.SetCellValue("Sheet1", "C"+fmt.Sprint(i+2), d.FullName)
		f.SetCellValue("Sheet1", "D"+fmt.Sprint(i+2), d.VerificationStatus)
		f.SetCellValue("Sheet1", "E"+fmt.Sprint(i+2), d.PaymentStatus)
		f.SetCellValue("Sheet1", "F"+fmt.Sprint(i+2), lastAssigned)
		f.SetCellValue("Sheet1", "G"+fmt.Sprint(i+2), d.RequestsHandled)
		f.SetCellValue("Sheet1", "H"+fmt.Sprint(i+2), d.OpenAssigned)
		f.SetCellValue("Sheet1", "I"+fmt.Sprint(i+2), d.Completed)
	}

	return f.Write(w)
}
