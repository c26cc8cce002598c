package repository

import (
	"strings"
	"testing"
)

func TestBuildLikeConditionByDialect(t *testing.T) {
	condition, argCount := buildLikeConditionByDialect("sqlite", []string{"title", " ", "landing_url"})
	if argCount != 2 {
		t.Fatalf("arg count want 2 got %d", argCount)
	}
	if condition != "title LIKE ? OR landing_url LIKE ?" {
		t.Fatalf("unexpected sqlite condition: %s", condition)
	}

	condition, _ = buildLikeConditionByDialect("postgres", []string{"order_ref"})
	if !strings.Contains(condition, "order_ref ILIKE ?") {
		t.Fatalf("postgres condition should use ILIKE, got %s", condition)
	}
}

func TestBuildLikeConditionNilDBDefaultsToSQLite(t *testing.T) {
	condition, _ := buildLikeCondition(nil, []string{"record_no"})
	if condition != "record_no LIKE ?" {
		t.Fatalf("nil db should use sqlite operator, got %s", condition)
	}
}

func TestRepeatLikeArgs(t *testing.T) {
	args := repeatLikeArgs("%test%", 3)
	if len(args) != 3 {
		t.Fatalf("args len want 3 got %d", len(args))
	}
	for idx, arg := range args {
		if arg != "%test%" {
			t.Fatalf("args[%d] want %%test%% got %v", idx, arg)
		}
	}
}
