package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"lucky-draw/internal/db"
	"lucky-draw/internal/draw"
)

var testDBCounter atomic.Int64

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:srvtest%d?mode=memory&cache=shared", testDBCounter.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := draw.NewService(conn, draw.NewSeededSampler(1), logger, 2*time.Second)
	return New(conn, svc), conn
}

func seedDrawProject(t *testing.T, conn *gorm.DB, members int) (*db.Project, *db.Prize) {
	t.Helper()
	project := db.Project{Code: "p1", Name: "Project p1", IsActive: true}
	if err := conn.Create(&project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	prize := db.Prize{ProjectID: project.ID, Name: "Gold", TotalCount: 3, IsActive: true}
	if err := conn.Create(&prize).Error; err != nil {
		t.Fatalf("seed prize: %v", err)
	}
	items := make([]db.MemberImport, 0, members)
	for i := 0; i < members; i++ {
		items = append(items, db.MemberImport{
			UID:      fmt.Sprintf("u%03d", i),
			Name:     fmt.Sprintf("Member %d", i),
			Phone:    fmt.Sprintf("139%08d", i),
			IsActive: true,
		})
	}
	if len(items) > 0 {
		if _, err := db.BulkUpsertMembers(conn, project.ID, items); err != nil {
			t.Fatalf("seed members: %v", err)
		}
	}
	return &project, &prize
}

func doJSON(t *testing.T, handler http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-Acting-User", user)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestPreviewEndpointStagesBatch(t *testing.T) {
	srv, conn := newTestServer(t)
	handler := srv.Handler()
	project, prize := seedDrawProject(t, conn, 5)

	rec := doJSON(t, handler, http.MethodPost, "/api/draw-batches/preview", "ops", map[string]any{
		"project_id": project.ID.String(),
		"prize_id":   prize.ID.String(),
		"count":      2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["status"] != db.StatusPending {
		t.Fatalf("expected pending batch, got %v", payload["status"])
	}
	winners, ok := payload["winners"].([]any)
	if !ok || len(winners) != 2 {
		t.Fatalf("expected 2 staged winners, got %v", payload["winners"])
	}
}

func TestPreviewEndpointRequiresActingUser(t *testing.T) {
	srv, conn := newTestServer(t)
	handler := srv.Handler()
	project, prize := seedDrawProject(t, conn, 5)

	rec := doJSON(t, handler, http.MethodPost, "/api/draw-batches/preview", "", map[string]any{
		"project_id": project.ID.String(),
		"prize_id":   prize.ID.String(),
		"count":      1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without acting user, got %d", rec.Code)
	}
}

func TestConfirmEndpointConsumesQuota(t *testing.T) {
	srv, conn := newTestServer(t)
	handler := srv.Handler()
	project, prize := seedDrawProject(t, conn, 5)

	rec := doJSON(t, handler, http.MethodPost, "/api/draw-batches/preview", "ops", map[string]any{
		"project_id": project.ID.String(),
		"prize_id":   prize.ID.String(),
		"count":      2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("preview failed: %d %s", rec.Code, rec.Body.String())
	}
	batchID := decodeBody(t, rec)["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/draw-batches/"+batchID+"/confirm", "ops", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm failed: %d %s", rec.Code, rec.Body.String())
	}
	if status := decodeBody(t, rec)["status"]; status != db.StatusConfirmed {
		t.Fatalf("expected confirmed batch, got %v", status)
	}

	var reloaded db.Prize
	if err := conn.First(&reloaded, "id = ?", prize.ID).Error; err != nil {
		t.Fatalf("load prize: %v", err)
	}
	if reloaded.UsedCount != 2 {
		t.Fatalf("expected used_count 2, got %d", reloaded.UsedCount)
	}

	// Confirming again is a state conflict, not a retry.
	rec = doJSON(t, handler, http.MethodPost, "/api/draw-batches/"+batchID+"/confirm", "ops", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double confirm, got %d", rec.Code)
	}
}

func TestGetBatchEndpoint(t *testing.T) {
	srv, conn := newTestServer(t)
	handler := srv.Handler()
	project, prize := seedDrawProject(t, conn, 5)

	rec := doJSON(t, handler, http.MethodPost, "/api/draw-batches/preview", "ops", map[string]any{
		"project_id": project.ID.String(),
		"prize_id":   prize.ID.String(),
		"count":      1,
	})
	batchID := decodeBody(t, rec)["id"].(string)

	rec = doJSON(t, handler, http.MethodGet, "/api/draw-batches/"+batchID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["id"]; got != batchID {
		t.Fatalf("expected batch %s, got %v", batchID, got)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/draw-batches/"+uuid.NewString(), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown batch, got %d", rec.Code)
	}
}

func TestVoidEndpointRequiresReason(t *testing.T) {
	srv, conn := newTestServer(t)
	handler := srv.Handler()
	project, prize := seedDrawProject(t, conn, 5)

	rec := doJSON(t, handler, http.MethodPost, "/api/draw-batches/preview", "ops", map[string]any{
		"project_id": project.ID.String(),
		"prize_id":   prize.ID.String(),
		"count":      1,
	})
	batchID := decodeBody(t, rec)["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/draw-batches/"+batchID+"/void", "ops", map[string]any{
		"reason": "",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty reason, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/draw-batches/"+batchID+"/void", "ops", map[string]any{
		"reason": "wrong pool",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("void failed: %d %s", rec.Code, rec.Body.String())
	}
	if status := decodeBody(t, rec)["status"]; status != db.StatusVoid {
		t.Fatalf("expected void batch, got %v", status)
	}
}

func TestRevokeEndpointReleasesSlot(t *testing.T) {
	srv, conn := newTestServer(t)
	handler := srv.Handler()
	project, prize := seedDrawProject(t, conn, 5)

	rec := doJSON(t, handler, http.MethodPost, "/api/draw-batches/preview", "ops", map[string]any{
		"project_id": project.ID.String(),
		"prize_id":   prize.ID.String(),
		"count":      1,
	})
	batchID := decodeBody(t, rec)["id"].(string)
	rec = doJSON(t, handler, http.MethodPost, "/api/draw-batches/"+batchID+"/confirm", "ops", nil)
	winners := decodeBody(t, rec)["winners"].([]any)
	winnerID := winners[0].(map[string]any)["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/winners/"+winnerID+"/revoke", "ops", map[string]any{
		"reason": "ineligible employee",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke failed: %d %s", rec.Code, rec.Body.String())
	}
	var reloaded db.Prize
	if err := conn.First(&reloaded, "id = ?", prize.ID).Error; err != nil {
		t.Fatalf("load prize: %v", err)
	}
	if reloaded.UsedCount != 0 {
		t.Fatalf("expected quota released, got used_count=%d", reloaded.UsedCount)
	}
}

func TestListWinnersEndpointFiltersAndPaginates(t *testing.T) {
	srv, conn := newTestServer(t)
	handler := srv.Handler()
	project, prize := seedDrawProject(t, conn, 5)

	rec := doJSON(t, handler, http.MethodPost, "/api/draw-batches/preview", "ops", map[string]any{
		"project_id": project.ID.String(),
		"prize_id":   prize.ID.String(),
		"count":      3,
	})
	batchID := decodeBody(t, rec)["id"].(string)
	doJSON(t, handler, http.MethodPost, "/api/draw-batches/"+batchID+"/confirm", "ops", nil)

	rec = doJSON(t, handler, http.MethodGet, "/api/projects/"+project.ID.String()+"/winners?status=confirmed", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if total := payload["total"].(float64); total != 3 {
		t.Fatalf("expected 3 confirmed winners, got %v", total)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/projects/"+project.ID.String()+"/winners?per_page=2&page=2", "", nil)
	payload = decodeBody(t, rec)
	if got := len(payload["winners"].([]any)); got != 1 {
		t.Fatalf("expected 1 winner on page 2, got %d", got)
	}
}

func TestResetWinnersEndpoint(t *testing.T) {
	srv, conn := newTestServer(t)
	handler := srv.Handler()
	project, prize := seedDrawProject(t, conn, 5)

	rec := doJSON(t, handler, http.MethodPost, "/api/draw-batches/preview", "ops", map[string]any{
		"project_id": project.ID.String(),
		"prize_id":   prize.ID.String(),
		"count":      2,
	})
	batchID := decodeBody(t, rec)["id"].(string)
	doJSON(t, handler, http.MethodPost, "/api/draw-batches/"+batchID+"/confirm", "ops", nil)

	rec = doJSON(t, handler, http.MethodPost, "/api/projects/"+project.ID.String()+"/reset-winners", "ops", map[string]any{
		"reason": "campaign rerun",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset failed: %d %s", rec.Code, rec.Body.String())
	}
	var reloaded db.Prize
	if err := conn.First(&reloaded, "id = ?", prize.ID).Error; err != nil {
		t.Fatalf("load prize: %v", err)
	}
	if reloaded.UsedCount != 0 {
		t.Fatalf("expected quota fully released, got used_count=%d", reloaded.UsedCount)
	}
}

func TestMembersBulkAndClearEndpoints(t *testing.T) {
	srv, conn := newTestServer(t)
	handler := srv.Handler()
	project, _ := seedDrawProject(t, conn, 0)

	rec := doJSON(t, handler, http.MethodPost, "/api/projects/"+project.ID.String()+"/members/bulk", "", map[string]any{
		"members": []map[string]any{
			{"uid": "u1", "name": "Ada", "phone": "138-0000-0001"},
			{"uid": "u2", "name": "Bob", "phone": "13800000002"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk upsert failed: %d %s", rec.Code, rec.Body.String())
	}
	if written := decodeBody(t, rec)["written"].(float64); written != 2 {
		t.Fatalf("expected 2 members written, got %v", written)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/projects/"+project.ID.String()+"/members/clear", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear failed: %d %s", rec.Code, rec.Body.String())
	}
	if cleared := decodeBody(t, rec)["cleared"].(float64); cleared != 2 {
		t.Fatalf("expected 2 members cleared, got %v", cleared)
	}
}
