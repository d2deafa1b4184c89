package community_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"awakener/pkg/tool"
	"awakener/pkg/tool/community"

	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func TestInitDisabledWithoutURL(t *testing.T) {
	x := community.New()
	enabled := gt.R1(x.Init(context.Background(), &tool.Client{})).NoError(t)
	gt.False(t, enabled)
}

func TestPost(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.V(t, r.Method).Equal("POST")
		gt.V(t, r.URL.Path).Equal("/api/posts")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	x := community.New(community.WithBaseURL(srv.URL))
	enabled := gt.R1(x.Init(context.Background(), &tool.Client{})).NoError(t)
	gt.True(t, enabled)

	resp := gt.R1(x.Execute(context.Background(), genai.FunctionCall{
		Name: "community_post",
		Args: map[string]any{"message": "round 12 done, services healthy"},
	})).NoError(t)

	output, ok := resp.Response["output"].(string)
	gt.True(t, ok)
	gt.S(t, output).Contains("posted")
	gt.V(t, got["message"]).Equal("round 12 done, services healthy")
}

func TestPostServerErrorBecomesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	x := community.New(community.WithBaseURL(srv.URL))

	resp := gt.R1(x.Execute(context.Background(), genai.FunctionCall{
		Name: "community_post",
		Args: map[string]any{"message": "hello"},
	})).NoError(t)

	output, ok := resp.Response["output"].(string)
	gt.True(t, ok)
	gt.S(t, output).Contains("community post failed")
}
