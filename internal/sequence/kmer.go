package sequence

// KmerSet is the set of distinct k-mers of a sequence. K-mer identity, not
// position or multiplicity, is what drives similarity scoring.
type KmerSet map[string]struct{}

// Len returns the number of distinct k-mers in the set.
func (s KmerSet) Len() int { return len(s) }

// Contains reports whether the set holds the given k-mer.
func (s KmerSet) Contains(kmer string) bool {
	_, ok := s[kmer]
	return ok
}

// Kmers slides a window of width k over a canonical sequence and collects
// the distinct windows. Windows containing ambiguity codes or gaps are
// excluded: only unambiguous A/T/G/C k-mers participate in similarity.
// A sequence shorter than k yields an empty set.
func Kmers(seq string, k int) KmerSet {
	set := make(KmerSet)
	if k <= 0 || len(seq) < k {
		return set
	}
	// Track the last position of a non-ACGT byte so each window is checked
	// in O(1) instead of rescanning k bytes.
	lastBad := -1
	for i := 0; i < len(seq); i++ {
		switch seq[i] {
		case 'A', 'C', 'G', 'T':
		default:
			lastBad = i
		}
		if i >= k-1 && lastBad <= i-k {
			set[seq[i-k+1:i+1]] = struct{}{}
		}
	}
	return set
}
