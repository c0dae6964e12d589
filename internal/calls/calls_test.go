package calls

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		job         Job
		minDuration int
		want        Class
	}{
		{
			name:        "normal call with recording",
			job:         Job{Duration: 45, RecordingURL: "https://recordings.example.com/CA1.mp3"},
			minDuration: 5,
			want:        ClassNormal,
		},
		{
			name:        "below minimum duration",
			job:         Job{Duration: 3, RecordingURL: "https://recordings.example.com/CA2.mp3"},
			minDuration: 5,
			want:        ClassShort,
		},
		{
			name:        "missing recording URL",
			job:         Job{Duration: 120},
			minDuration: 5,
			want:        ClassShort,
		},
		{
			name:        "duration exactly at minimum",
			job:         Job{Duration: 5, RecordingURL: "https://recordings.example.com/CA3.mp3"},
			minDuration: 5,
			want:        ClassNormal,
		},
		{
			name:        "zero duration and no recording",
			job:         Job{},
			minDuration: 5,
			want:        ClassShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.job, tt.minDuration); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
