package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/dto"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
	"github.com/noah-isme/patient-progress-api/pkg/storage"
)

func newExportFixture(t *testing.T) *ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	comparisons := NewComparisonService(newStubDatasets(t), catalog.Default(), nil, nil, nil)
	signer := storage.NewSignedURLSigner("export-secret", time.Hour)
	return NewExportService(comparisons, files, signer, ExportConfig{APIPrefix: "/api/v1/"}, nil, nil, nil)
}

func exportRequest(format dto.ExportFormat) dto.ExportRequest {
	return dto.ExportRequest{
		CompareRequest: dto.CompareRequest{PatientID: "100", Baseline: "2024-01", FollowUp: "2024-06"},
		Format:         format,
	}
}

func TestExportServiceCSVRoundTrip(t *testing.T) {
	svc := newExportFixture(t)

	resp, err := svc.Export(context.Background(), exportRequest(dto.ExportFormatCSV))
	require.NoError(t, err)
	assert.Equal(t, "comparison_100_2024-01_2024-06.csv", resp.FileName)
	assert.Equal(t, "/api/v1/exports/"+resp.Token, resp.URL)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	file, name, err := svc.Open(resp.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, resp.FileName, name)

	body, err := io.ReadAll(file)
	require.NoError(t, err)
	content := string(body)
	assert.Contains(t, content, "Item,Baseline,Follow-up,Delta,Classification")
	assert.Contains(t, content, "Sitting balance,40,62,22,Established but still moderate improvement.")
	assert.True(t, strings.Contains(content, "Rolling,50,N/A,N/A,"))
}

func TestExportServicePDF(t *testing.T) {
	svc := newExportFixture(t)
	resp, err := svc.Export(context.Background(), exportRequest(dto.ExportFormatPDF))
	require.NoError(t, err)

	file, _, err := svc.Open(resp.Token)
	require.NoError(t, err)
	defer file.Close()
	head := make([]byte, 4)
	_, err = io.ReadFull(file, head)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(head))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := newExportFixture(t)
	_, err := svc.Export(context.Background(), exportRequest("xlsx"))
	assert.ErrorIs(t, err, appErrors.ErrUnsupportedFormat)
}

func TestExportServicePropagatesComparisonErrors(t *testing.T) {
	svc := newExportFixture(t)
	req := exportRequest(dto.ExportFormatCSV)
	req.FollowUp = req.Baseline
	_, err := svc.Export(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrIdenticalPeriods)
}

func TestExportServiceRejectsBadToken(t *testing.T) {
	svc := newExportFixture(t)
	_, _, err := svc.Open("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrExportTokenRejected)
}

func TestExportFileNameSanitizesParts(t *testing.T) {
	svc := newExportFixture(t)
	report, err := svc.comparisons.Compare(context.Background(), exportRequest(dto.ExportFormatCSV).CompareRequest)
	require.NoError(t, err)
	report.BaselinePeriod = "2024/01 (a)"
	assert.Equal(t, "comparison_100_2024-01-a_2024-06.pdf", exportFileName(report, dto.ExportFormatPDF))
}
