package model

// Portfolio represents a portfolio from the database.
type Portfolio struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	BaseCurrency string `json:"baseCurrency"`
	IsArchived   bool   `json:"isArchived"`
}

// PortfolioFilter for querying portfolios
type PortfolioFilter struct {
	IncludeArchived bool
}
