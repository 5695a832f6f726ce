package common

// DefaultCurrency is used when a payment request does not name one.
const DefaultCurrency = "KES"

// MinSecretLength is the shortest API key or private key accepted from operators.
const MinSecretLength = 10
