package bus

import "testing"

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		want    bool
	}{
		{"exact match", "swarm.tasks.results", "swarm.tasks.results", true},
		{"exact mismatch", "swarm.tasks.results", "swarm.tasks.assignments", false},
		{"wildcard segment match", "swarm.workers.inbox.*", "swarm.workers.inbox.worker-1", true},
		{"wildcard segment mismatch length", "swarm.workers.inbox.*", "swarm.workers.inbox.worker-1.extra", false},
		{"wildcard middle segment", "swarm.*.results", "swarm.tasks.results", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchSubject(tt.pattern, tt.subject); got != tt.want {
				t.Errorf("matchSubject(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
			}
		})
	}
}
