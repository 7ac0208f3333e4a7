package domain

// Handle is an opaque reference to an externally owned UI element.
type Handle any
