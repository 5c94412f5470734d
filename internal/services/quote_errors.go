package services

import "errors"

var (
	// ErrQuoteInvalidInput signals malformed quote requests such as missing items or non-positive quantities.
	ErrQuoteInvalidInput = errors.New("quote: invalid input")
	// ErrNoPriceAvailable indicates no pricing source could produce a list price for the item.
	ErrNoPriceAvailable = errors.New("quote: no price available")
	// ErrQuoteRulesUnavailable indicates campaigns, price rules or pricing profiles could not be loaded.
	ErrQuoteRulesUnavailable = errors.New("quote: pricing rules unavailable")
	// ErrQuotePublishFailed indicates the packing plan could not be handed to the fulfilment topic.
	ErrQuotePublishFailed = errors.New("quote: packing plan publish failed")
)
