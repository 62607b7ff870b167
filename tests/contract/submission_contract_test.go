package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/Y04ash/Projexx/internal/dto"
	"github.com/Y04ash/Projexx/internal/handler"
	"github.com/Y04ash/Projexx/internal/service"
)

type stubSubmissionService struct {
	response dto.SubmissionResponse
}

func (s stubSubmissionService) Submit(context.Context, dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func (s stubSubmissionService) Get(context.Context, string, service.ViewContext) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func (s stubSubmissionService) ListByTask(context.Context, string, string) ([]dto.SubmissionResponse, error) {
	return []dto.SubmissionResponse{s.response}, nil
}

func (s stubSubmissionService) ListByTaskAudit(context.Context, string, string) ([]dto.SubmissionResponse, error) {
	return []dto.SubmissionResponse{s.response}, nil
}

func (s stubSubmissionService) SoftDelete(context.Context, string, string, string) error {
	return nil
}

func (s stubSubmissionService) Restore(context.Context, string) (dto.SubmissionResponse, error) {
	return s.response, nil
}

type stubGradingService struct {
	response dto.SubmissionResponse
}

func (s stubGradingService) Grade(context.Context, string, string, dto.GradeSubmissionRequest) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func TestSubmissionContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "submission.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	now := time.Now().UTC()
	gradedAt := now.Add(2 * time.Hour)
	reviewer := "c3a1d4be-8357-4a04-b8a5-55c8a29f8a01"
	response := dto.SubmissionResponse{
		ID:            "7f5b5d8e-9c12-4f6a-8d30-2f1c9a6e7b44",
		TaskID:        "1d2e3f40-5a6b-4c7d-8e9f-0a1b2c3d4e5f",
		StudentID:     "9a8b7c6d-5e4f-4a3b-2c1d-0e9f8a7b6c5d",
		Comment:       "Here is my completed research report for review.",
		Collaborators: []string{"peer@example.com"},
		Attachments: []dto.AttachmentResponse{
			{
				BlobID:       "projexx/submissions/report",
				URL:          "http://res.example.com/report.pdf",
				SecureURL:    "https://res.example.com/report.pdf",
				OriginalName: "report.pdf",
				SizeBytes:    20480,
				Format:       "pdf",
				UploadedAt:   now,
			},
		},
		Status:        "graded",
		AttemptNumber: 2,
		IsLate:        false,
		SubmittedAt:   now,
		Grade:         ptrFloat(42),
		Feedback:      "Strong analysis, cite your sources next time.",
		GradedAt:      &gradedAt,
		GradedBy:      &reviewer,
		Reviews: []dto.ReviewResponse{
			{
				ReviewerID: "9a8b7c6d-5e4f-4a3b-2c1d-0e9f8a7b6c5d",
				Action:     "submitted",
				Comment:    "Attempt 2 submitted",
				ReviewedAt: now,
			},
			{
				ReviewerID: reviewer,
				Action:     "graded",
				Comment:    "Graded with 42/50 points",
				Grade:      ptrFloat(42),
				ReviewedAt: gradedAt,
			},
		},
		Task: dto.TaskLite{
			ID:        "1d2e3f40-5a6b-4c7d-8e9f-0a1b2c3d4e5f",
			Title:     "Research Report",
			MaxPoints: 50,
			DueDate:   now.Add(24 * time.Hour),
		},
		Student: dto.StudentLite{
			ID:        "9a8b7c6d-5e4f-4a3b-2c1d-0e9f8a7b6c5d",
			Username:  "amrita.shah",
			Email:     "amrita@example.com",
			FirstName: "Amrita",
			LastName:  "Shah",
		},
		CreatedAt: now,
		UpdatedAt: gradedAt,
	}

	submissions := stubSubmissionService{response: response}
	grading := stubGradingService{response: response}
	submissionHandler := handler.NewSubmissionHandler(submissions, grading, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Locals("user_id", response.StudentID)
		c.Locals("user_role", "student")
		return c.Next()
	})
	submissionHandler.Register(group)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/"+response.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func ptrFloat(v float64) *float64 {
	return &v
}
