package market

// CatalogEntry is one row of the browsable default stock list.
type CatalogEntry struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}

// DefaultCatalog is the curated set of symbols shown before the user
// searches. US large caps plus the most liquid MOEX names.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ"},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: "NASDAQ"},
		{Symbol: "GOOGL", Name: "Alphabet Inc.", Exchange: "NASDAQ"},
		{Symbol: "AMZN", Name: "Amazon.com, Inc.", Exchange: "NASDAQ"},
		{Symbol: "NVDA", Name: "NVIDIA Corporation", Exchange: "NASDAQ"},
		{Symbol: "TSLA", Name: "Tesla, Inc.", Exchange: "NASDAQ"},
		{Symbol: "META", Name: "Meta Platforms, Inc.", Exchange: "NASDAQ"},
		{Symbol: "NFLX", Name: "Netflix, Inc.", Exchange: "NASDAQ"},
		{Symbol: "SBER.ME", Name: "Sberbank", Exchange: "MOEX"},
		{Symbol: "GAZP.ME", Name: "Gazprom", Exchange: "MOEX"},
		{Symbol: "LKOH.ME", Name: "Lukoil", Exchange: "MOEX"},
		{Symbol: "ROSN.ME", Name: "Rosneft", Exchange: "MOEX"},
		{Symbol: "MGNT.ME", Name: "Magnit", Exchange: "MOEX"},
		{Symbol: "MTSS.ME", Name: "MTS", Exchange: "MOEX"},
	}
}
