package telemetry

import (
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

const alertsPath = "../../deploy/prometheus/alerts.yml"

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

func loadAlerts(t *testing.T) []alertGroup {
	t.Helper()
	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("Skipping test: alerts file not found at %s", alertsPath)
	}
	var config struct {
		Groups []alertGroup `yaml:"groups"`
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		t.Fatalf("Invalid YAML in alerts.yml: %v", err)
	}
	if len(config.Groups) == 0 {
		t.Fatal("alerts.yml has no groups")
	}
	return config.Groups
}

// TestCriticalAlertsPresent verifies critical alerts are defined.
func TestCriticalAlertsPresent(t *testing.T) {
	groups := loadAlerts(t)

	found := make(map[string]alertRule)
	for _, g := range groups {
		for _, r := range g.Rules {
			found[r.Alert] = r
		}
	}

	for _, name := range []string{"HighAPIErrorRate", "DatabaseDown", "SimulationFailures"} {
		if _, ok := found[name]; !ok {
			t.Errorf("critical alert %q not found in alerts.yml", name)
		}
	}
}

// TestAlertsHaveLabels verifies every alert carries a severity and a summary.
func TestAlertsHaveLabels(t *testing.T) {
	valid := map[string]bool{"critical": true, "warning": true, "info": true}
	for _, g := range loadAlerts(t) {
		for _, r := range g.Rules {
			if strings.TrimSpace(r.Expr) == "" {
				t.Errorf("%s: empty expr", r.Alert)
			}
			if !valid[r.Labels["severity"]] {
				t.Errorf("%s: invalid severity %q", r.Alert, r.Labels["severity"])
			}
			if r.Annotations["summary"] == "" {
				t.Errorf("%s: missing summary annotation", r.Alert)
			}
		}
	}
}

var (
	metricNameRe = regexp.MustCompile(`invernadero_[a-z_]+`)
	fqNameRe     = regexp.MustCompile(`fqName: "([^"]+)"`)
)

func declaredMetrics() map[string]bool {
	collectors := []prometheus.Collector{
		SimulationsTotal, SimulationMakespan, PlanEntriesSkipped, UploadsTotal, ResultCacheTotal,
		APIRequestDuration, APIRequestsTotal, APIActiveConnections,
		DatabaseQueryDuration, DatabaseErrorsTotal, DatabaseConnectionsActive,
	}
	names := make(map[string]bool)
	for _, c := range collectors {
		ch := make(chan *prometheus.Desc, 4)
		c.Describe(ch)
		close(ch)
		for d := range ch {
			if m := fqNameRe.FindStringSubmatch(d.String()); m != nil {
				names[m[1]] = true
			}
		}
	}
	return names
}

// TestAlertsReferenceDeclaredMetrics verifies alert expressions only use
// metrics this package registers.
func TestAlertsReferenceDeclaredMetrics(t *testing.T) {
	declared := declaredMetrics()
	if len(declared) == 0 {
		t.Fatal("no metrics declared")
	}

	for _, g := range loadAlerts(t) {
		for _, r := range g.Rules {
			for _, name := range metricNameRe.FindAllString(r.Expr, -1) {
				base := name
				for _, suffix := range []string{"_bucket", "_count", "_sum"} {
					if trimmed := strings.TrimSuffix(name, suffix); trimmed != name && declared[trimmed] {
						base = trimmed
						break
					}
				}
				if !declared[base] {
					t.Errorf("%s: metric %s is not declared", r.Alert, name)
				}
			}
		}
	}
}
