package pagecontext

// Timing is the navigation timing snapshot a caller may attach to a request.
type Timing struct {
	Type               string `json:"type"`
	DOMContentLoadedMs int64  `json:"domContentLoadedMs"`
	LoadEventMs        int64  `json:"loadEventMs"`
	TransferSize       int64  `json:"transferSize"`
	EncodedBodySize    int64  `json:"encodedBodySize"`
}

// Page identifies the captured document.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Lang        string `json:"lang"`
	ContentType string `json:"contentType"`
	ReadyState  string `json:"readyState"`
	Referrer    string `json:"referrer"`
	CapturedAt  string `json:"capturedAt"`
}

// Meta holds the description, canonical and Open Graph tags.
type Meta struct {
	Description   string `json:"description"`
	Keywords      string `json:"keywords"`
	Canonical     string `json:"canonical"`
	OGTitle       string `json:"ogTitle"`
	OGDescription string `json:"ogDescription"`
}

// Heading is an h1-h6 with its visible text.
type Heading struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Link is an anchor with its resolved href.
type Link struct {
	Text     string `json:"text"`
	Href     string `json:"href"`
	External bool   `json:"external"`
}

// Interactive is a control the user can act on.
type Interactive struct {
	Element     string `json:"element"`
	Label       string `json:"label"`
	Destination string `json:"destination"`
}

// Content is the text pulled from the content root.
type Content struct {
	RootSelector        string        `json:"rootSelector"`
	SummaryText         string        `json:"summaryText"`
	FullTextSample      string        `json:"fullTextSample"`
	RelevantLines       []string      `json:"relevantLines"`
	Snippets            []string      `json:"snippets"`
	InteractiveElements []Interactive `json:"interactiveElements"`
	Headings            []Heading     `json:"headings"`
	KeyLinks            []Link        `json:"keyLinks"`
	TextCharsOriginal   int           `json:"textCharsOriginal"`
	TextCharsIncluded   int           `json:"textCharsIncluded"`
	RenderedTextChars   int           `json:"renderedTextChars"`
	TextWasTruncated    bool          `json:"textWasTruncated"`
}

// DOMStats counts elements across the whole document.
type DOMStats struct {
	ElementsScanned  int `json:"elementsScanned"`
	Links            int `json:"links"`
	Headings         int `json:"headings"`
	Paragraphs       int `json:"paragraphs"`
	Lists            int `json:"lists"`
	Tables           int `json:"tables"`
	Forms            int `json:"forms"`
	Images           int `json:"images"`
	ImagesWithoutAlt int `json:"imagesWithoutAlt"`
}

// Structure describes the document shape.
type Structure struct {
	DOMStats DOMStats `json:"domStats"`
	Timing   *Timing  `json:"timing"`
}

// PageContext is everything extracted from one page snapshot.
type PageContext struct {
	Page      Page      `json:"page"`
	Meta      Meta      `json:"meta"`
	Content   Content   `json:"content"`
	Structure Structure `json:"structure"`
}

// ConsoleSignals is the console digest embedded by strategies that want it.
type ConsoleSignals struct {
	TotalCaptured int
	Count         int
	UniqueCount   int
	Lines         []string
}
