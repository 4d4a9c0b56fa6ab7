package auth

import (
	"context"
	"errors"
	"testing"
)

func TestStatic(t *testing.T) {
	tok, err := Static("abc").Token(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("Static.Token = (%q, %v), want abc", tok, err)
	}

	_, err = Static(" ").Token(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvToken, "from-env")

	tok, err := FromEnv{}.Token(context.Background())
	if err != nil || tok != "from-env" {
		t.Errorf("FromEnv.Token = (%q, %v), want from-env", tok, err)
	}

	t.Setenv(EnvToken, "")
	if _, err := (FromEnv{}).Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvToken, "from-env")

	if tok, _ := Resolve("flag").Token(context.Background()); tok != "flag" {
		t.Errorf("expected explicit token to win, got %q", tok)
	}
	if tok, _ := Resolve("").Token(context.Background()); tok != "from-env" {
		t.Errorf("expected env token, got %q", tok)
	}
}
