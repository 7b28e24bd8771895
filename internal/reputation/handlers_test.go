package reputation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
)

func newTestRouter(f *serviceFixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.service, f.users)

	r := gin.New()
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	return r
}

func TestGetReputationEndpoint(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "usr_1", func(u *directory.User) {
		u.ReputationScore = 1200
		u.ReputationLevel = LevelGold
	})
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/reputation/usr_1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		UserID     string  `json:"userId"`
		Score      int     `json:"score"`
		Level      string  `json:"level"`
		Multiplier float64 `json:"multiplier"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "usr_1", body.UserID)
	assert.Equal(t, 1200, body.Score)
	assert.Equal(t, LevelGold, body.Level)
	assert.Equal(t, MultiplierFor(LevelGold), body.Multiplier)
}

func TestGetReputationDerivesLevel(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "usr_1", func(u *directory.User) {
		u.ReputationScore = 600
	})
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/reputation/usr_1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Level string `json:"level"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, LevelSilver, body.Level)
}

func TestGetReputationUnknownUser(t *testing.T) {
	f := newServiceFixture(t)
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/reputation/usr_missing", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user_not_found", body.Error)
}

func TestRecomputeEndpoint(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "usr_1", func(u *directory.User) {
		u.VerificationStatus = directory.VerificationVerified
	})
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/reputation/usr_1/recompute", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Reputation struct {
			UserID  string         `json:"userId"`
			Total   int            `json:"total"`
			Level   string         `json:"level"`
			Factors map[string]int `json:"factors"`
		} `json:"reputation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "usr_1", body.Reputation.UserID)
	assert.Greater(t, body.Reputation.Total, 0)
	assert.NotEmpty(t, body.Reputation.Level)
	assert.NotEmpty(t, body.Reputation.Factors)
}

func TestAwardEndpoint(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "usr_1", nil)
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/reputation/usr_1/award",
		strings.NewReader(`{"points":500,"reason":"community contribution"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Award struct {
			NewScore      int    `json:"newScore"`
			NewLevel      string `json:"newLevel"`
			PointsAwarded int    `json:"pointsAwarded"`
		} `json:"award"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 500, body.Award.NewScore)
	assert.Equal(t, LevelSilver, body.Award.NewLevel)
	assert.Equal(t, 500, body.Award.PointsAwarded)
}

func TestAwardEndpointMissingReason(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "usr_1", nil)
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/reputation/usr_1/award",
		strings.NewReader(`{"points":500}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "usr_1", nil)
	r := newTestRouter(f)

	// Two recomputes produce two snapshots
	for i := 0; i < 2; i++ {
		if _, err := f.service.Compute(context.Background(), "usr_1"); err != nil {
			t.Fatalf("Compute: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/reputation/usr_1/history?limit=10", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		UserID    string `json:"userId"`
		Count     int    `json:"count"`
		Snapshots []struct {
			Score  int    `json:"score"`
			Reason string `json:"reason"`
		} `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "usr_1", body.UserID)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Snapshots, 2)
	assert.Equal(t, "recompute", body.Snapshots[0].Reason)
}

func TestLeaderboardEndpoint(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "usr_1", func(u *directory.User) {
		u.ReputationScore = 300
		u.ReputationLevel = LevelBronze
	})
	f.seedUser(t, "usr_2", func(u *directory.User) {
		u.ReputationScore = 2500
		u.ReputationLevel = LevelPlatinum
	})
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/reputation/leaderboard?limit=5", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Leaderboard []struct {
			Rank   int    `json:"rank"`
			UserID string `json:"userId"`
			Score  int    `json:"score"`
		} `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Leaderboard, 2)
	assert.Equal(t, 1, body.Leaderboard[0].Rank)
	assert.Equal(t, "usr_2", body.Leaderboard[0].UserID)
	assert.Equal(t, "usr_1", body.Leaderboard[1].UserID)
}

func TestDistributionEndpoint(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "usr_1", func(u *directory.User) {
		u.ReputationScore = 300
		u.ReputationLevel = LevelBronze
	})
	f.seedUser(t, "usr_2", func(u *directory.User) {
		u.ReputationScore = 700
		u.ReputationLevel = LevelSilver
	})
	r := newTestRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/reputation/distribution", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Distribution map[string]struct {
			Count    int     `json:"count"`
			AvgScore float64 `json:"avgScore"`
		} `json:"distribution"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Distribution[LevelBronze].Count)
	assert.Equal(t, 1, body.Distribution[LevelSilver].Count)
}
