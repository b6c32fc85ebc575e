package passage

// Passage is a retrieved fragment of document text. It lives for one request only.
type Passage struct {
	documentID string
	text       string
	page       int
	rank       int
	score      float64
}

// New creates a Passage. Rank is 1-based; page 0 means the locator is unknown.
func New(documentID, text string, page, rank int, score float64) Passage {
	return Passage{documentID: documentID, text: text, page: page, rank: rank, score: score}
}

// DocumentID returns the document the passage was cut from.
func (p *Passage) DocumentID() string { return p.documentID }

// Text returns the passage body.
func (p *Passage) Text() string { return p.text }

// Page returns the page number locator.
func (p *Passage) Page() int { return p.page }

// Rank returns the 1-based relevance rank.
func (p *Passage) Rank() int { return p.rank }

// Score returns the similarity score in [0,1].
func (p *Passage) Score() float64 { return p.score }
