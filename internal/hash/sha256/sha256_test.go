package sha256

import "testing"

func TestHasherHash(t *testing.T) {
	t.Parallel()

	const full = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	cases := []struct {
		name   string
		hasher *Hasher
		want   string
	}{
		{name: "full", hasher: New(), want: full},
		{name: "short", hasher: NewShort(12), want: full[:12]},
		{name: "longer than digest", hasher: NewShort(100), want: full},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.hasher.Hash([]byte("hello world"))
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
