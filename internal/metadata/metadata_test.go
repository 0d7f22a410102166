package metadata_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/metadata"
	"github.com/scenarr/scenarr/internal/testsupport"
)

const findSceneResponse = `{"data":{"findScene":{
	"id":"s1","title":" Morning Light ","release_date":"2024-03-15",
	"studio":{"name":"Brightside"},
	"performers":[{"as":"","performer":{"name":"Jane Doe"}},{"as":"Janie","performer":{"name":"Jane Roe"}}]
}}}`

func newStashServer(t *testing.T, handler func(query string, vars map[string]interface{}) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("ApiKey") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Query     string                 `json:"query"`
			Variables map[string]interface{} `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, handler(req.Query, req.Variables))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStashDBSceneByID(t *testing.T) {
	srv := newStashServer(t, func(query string, vars map[string]interface{}) string {
		if vars["id"] == "s1" {
			return findSceneResponse
		}
		return `{"data":{"findScene":null}}`
	})
	client := metadata.NewStashDBClient(srv.URL, "key", 100, 0, zerolog.Nop())

	scene, err := client.SceneByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("SceneByID returned error: %v", err)
	}
	if scene.Title != "Morning Light" || scene.Studio != "Brightside" {
		t.Fatalf("unexpected scene: %+v", scene)
	}
	if len(scene.Performers) != 2 || scene.Performers[1] != "Janie" {
		t.Fatalf("expected credited names, got %v", scene.Performers)
	}
	if scene.ReleaseDate == nil || scene.ReleaseDate.Format(time.DateOnly) != "2024-03-15" {
		t.Fatalf("unexpected release date: %v", scene.ReleaseDate)
	}

	if _, err := client.SceneByID(context.Background(), "missing"); !errors.Is(err, metadata.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStashDBScenesForEntity(t *testing.T) {
	var input map[string]interface{}
	srv := newStashServer(t, func(query string, vars map[string]interface{}) string {
		input, _ = vars["input"].(map[string]interface{})
		return `{"data":{"queryScenes":{"count":3,"scenes":[{"id":"a","title":"A"},{"id":"b","title":"B"}]}}}`
	})
	client := metadata.NewStashDBClient(srv.URL, "key", 100, 2, zerolog.Nop())

	scenes, page, err := client.ScenesForEntity(context.Background(), db.KindPerformer, "p1", 1)
	if err != nil {
		t.Fatalf("ScenesForEntity returned error: %v", err)
	}
	if len(scenes) != 2 || !page.HasMore() {
		t.Fatalf("unexpected page: %d scenes, %+v", len(scenes), page)
	}
	if _, ok := input["performers"]; !ok {
		t.Fatalf("expected a performer filter, got %v", input)
	}
	if input["per_page"] != float64(2) {
		t.Fatalf("expected per_page 2, got %v", input["per_page"])
	}

	if _, _, err := client.ScenesForEntity(context.Background(), "tag", "x", 1); err == nil {
		t.Fatal("expected unsupported kind to fail")
	}
}

func TestStashDBErrors(t *testing.T) {
	srv := newStashServer(t, func(string, map[string]interface{}) string {
		return `{"errors":[{"message":"boom"}]}`
	})

	client := metadata.NewStashDBClient(srv.URL, "key", 100, 0, zerolog.Nop())
	if _, err := client.SceneByID(context.Background(), "s1"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected GraphQL error, got %v", err)
	}

	client = metadata.NewStashDBClient(srv.URL, "wrong", 100, 0, zerolog.Nop())
	if err := client.Test(context.Background()); err == nil || !strings.Contains(err.Error(), "authentication") {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestCachedServesFreshRows(t *testing.T) {
	provider := testsupport.NewFakeProvider(metadata.Scene{ID: "s1", Title: "Morning Light", Performers: []string{"Jane Doe"}})
	cache := metadata.NewCached(testsupport.NewDB(t), provider, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		scene, err := cache.SceneByID(ctx, "s1")
		if err != nil {
			t.Fatalf("SceneByID returned error: %v", err)
		}
		if scene.Title != "Morning Light" || len(scene.Performers) != 1 {
			t.Fatalf("unexpected scene: %+v", scene)
		}
	}
	if provider.Calls != 1 {
		t.Fatalf("expected one provider call, got %d", provider.Calls)
	}
}

func TestCachedFallsBackToStaleRow(t *testing.T) {
	database := testsupport.NewDB(t)
	stale := time.Now().Add(-2 * metadata.SceneCacheDuration)
	row := metadata.ToModel(metadata.Scene{ID: "s1", Title: "Morning Light"})
	row.CachedAt = &stale
	if err := database.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	provider := testsupport.NewFakeProvider()
	provider.Err = errors.New("connection refused")
	cache := metadata.NewCached(database, provider, zerolog.Nop())

	scene, err := cache.SceneByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected stale row, got error: %v", err)
	}
	if scene.Title != "Morning Light" {
		t.Fatalf("unexpected scene: %+v", scene)
	}

	if _, err := cache.SceneByID(context.Background(), "other"); err == nil {
		t.Fatal("expected an uncached scene to fail")
	}
}

func TestCachedEntityListingRefreshesCache(t *testing.T) {
	database := testsupport.NewDB(t)
	provider := testsupport.NewFakeProvider()
	provider.ByEntity["p1"] = []metadata.Scene{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}
	cache := metadata.NewCached(database, provider, zerolog.Nop())

	if _, _, err := cache.ScenesForEntity(context.Background(), db.KindPerformer, "p1", 1); err != nil {
		t.Fatalf("ScenesForEntity returned error: %v", err)
	}
	var count int64
	database.Model(&db.Scene{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 cached scenes, got %d", count)
	}
}
