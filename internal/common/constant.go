package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// ExplorerTxURL is the format used for transaction links in replies. The
// arguments are the signature and the cluster name.
const ExplorerTxURL = "https://solscan.io/tx/%s?cluster=%s"
