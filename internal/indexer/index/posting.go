package index

// Posting is one document's entry in a term's postings.
type Posting struct {
	DocKey    string
	Frequency int
}

// PostingList is ordered by DocKey ascending.
type PostingList []Posting
