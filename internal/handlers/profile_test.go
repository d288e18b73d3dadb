package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platewise/platewise-backend/internal/apperr"
	"github.com/platewise/platewise-backend/internal/types"
)

type fakeProfileService struct {
	profile *types.HealthProfile
	err     error

	savedDiet, savedAllergens, savedGoals string
}

func (f *fakeProfileService) Get(ctx context.Context, sessionID uuid.UUID) (*types.HealthProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func (f *fakeProfileService) Save(ctx context.Context, sessionID uuid.UUID, diet, allergens, goals string) (*types.HealthProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.savedDiet, f.savedAllergens, f.savedGoals = diet, allergens, goals
	return &types.HealthProfile{SessionID: sessionID, Diet: diet, Allergens: allergens, Goals: goals}, nil
}

func newProfileRouter(svc *fakeProfileService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewProfileHandler(svc)
	r := gin.New()
	r.GET("/api/profile", h.Get)
	r.POST("/api/profile", h.Save)
	return r
}

func TestProfileGet(t *testing.T) {
	svc := &fakeProfileService{profile: &types.HealthProfile{Diet: "vegan", Allergens: "nuts", Goals: "cut"}}
	r := newProfileRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/profile?session_id="+uuid.NewString(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["diet"] != "vegan" || out["allergens"] != "nuts" || out["goals"] != "cut" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestProfileGetUnknownSession(t *testing.T) {
	r := newProfileRouter(&fakeProfileService{err: apperr.NotFound("unknown session")})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/profile?session_id="+uuid.NewString(), nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProfileSave(t *testing.T) {
	svc := &fakeProfileService{}
	r := newProfileRouter(svc)

	body := `{"session_id":"` + uuid.NewString() + `","diet":"keto","allergens":"","goals":"maintain"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/profile", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if svc.savedDiet != "keto" || svc.savedAllergens != "" || svc.savedGoals != "maintain" {
		t.Fatalf("save did not pass fields through: %+v", svc)
	}
}

func TestProfileSaveRequiresSessionID(t *testing.T) {
	r := newProfileRouter(&fakeProfileService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/profile", strings.NewReader(`{"diet":"keto"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
