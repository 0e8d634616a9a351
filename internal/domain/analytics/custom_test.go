package analytics

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPlanCustom(t *testing.T) {
	tests := []struct {
		name     string
		req      CustomRequest
		wantCols []string
		wantErr  bool
	}{
		{"appointments total", CustomRequest{Domain: "appointments"}, []string{"count"}, false},
		{"appointments by status", CustomRequest{Domain: "appointments", GroupBy: []string{"status"}}, []string{"status", "count"}, false},
		{"appointments by doctor and status", CustomRequest{Domain: "appointments", GroupBy: []string{"doctor", "status"}}, []string{"status", "doctor", "count"}, false},
		{"appointments count metric", CustomRequest{Domain: "appointments", Metrics: []string{"count"}}, []string{"count"}, false},
		{"appointments bad group", CustomRequest{Domain: "appointments", GroupBy: []string{"patient"}}, nil, true},
		{"appointments bad metric", CustomRequest{Domain: "appointments", Metrics: []string{"sum_revenue"}}, nil, true},
		{"financial total", CustomRequest{Domain: "financial"}, []string{"sum_revenue"}, false},
		{"financial by service", CustomRequest{Domain: "financial", GroupBy: []string{"service"}}, []string{"service", "sum_revenue"}, false},
		{"financial service then doctor", CustomRequest{Domain: "financial", GroupBy: []string{"service", "doctor"}}, []string{"doctor", "sum_revenue"}, false},
		{"financial bad group", CustomRequest{Domain: "financial", GroupBy: []string{"status"}}, nil, true},
		{"clinical default", CustomRequest{Domain: "clinical"}, []string{"cid10", "count"}, false},
		{"clinical explicit", CustomRequest{Domain: "clinical", GroupBy: []string{"cid10"}}, []string{"cid10", "count"}, false},
		{"clinical bad group", CustomRequest{Domain: "clinical", GroupBy: []string{"doctor"}}, nil, true},
		{"unknown domain", CustomRequest{Domain: "shipping"}, nil, true},
		{"injection attempt", CustomRequest{Domain: "appointments", GroupBy: []string{"status; DROP TABLE users"}}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := PlanCustom(tt.req)
			if tt.wantErr {
				if !IsClientError(err) {
					t.Fatalf("expected client error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(q.Columns(), ",") != strings.Join(tt.wantCols, ",") {
				t.Errorf("expected columns %v, got %v", tt.wantCols, q.Columns())
			}
			if q.Statement() == "" {
				t.Error("expected a statement")
			}
		})
	}
}

func TestCustomStatements_SelectEveryColumn(t *testing.T) {
	for key, stmt := range customStatements {
		parts := strings.SplitN(key, ":", 2)
		dom := customDomains[parts[0]]
		cols := []string{dom.metric}
		if parts[1] != "" {
			cols = append(strings.Split(parts[1], ","), dom.metric)
		}
		for _, c := range cols {
			if !strings.Contains(stmt, "AS "+c) {
				t.Errorf("statement %s does not select column %s", key, c)
			}
		}
		if !strings.Contains(stmt, "$1") || !strings.Contains(stmt, "$3") {
			t.Errorf("statement %s is not clinic and period scoped", key)
		}
	}
}

func TestRow_MarshalKeepsColumnOrder(t *testing.T) {
	row := Row{{"status", "completed"}, {"doctor", "Ana Souza"}, {"count", 7}}
	raw, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"status":"completed","doctor":"Ana Souza","count":7}`
	if string(raw) != want {
		t.Errorf("expected %s, got %s", want, raw)
	}
	if v, ok := row.Get("doctor"); !ok || v != "Ana Souza" {
		t.Errorf("unexpected Get result %v %v", v, ok)
	}
	if _, ok := row.Get("missing"); ok {
		t.Error("expected missing column to be absent")
	}
}
