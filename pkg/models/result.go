package models

// ResultRecord is one line of the local result journal, written once per
// completed job and never rewritten.
type ResultRecord struct {
	Corpus  string `json:"corpus"`
	DT      string `json:"dt"`
	Params  Params `json:"params"`
	Vectors string `json:"vectors"`
}
