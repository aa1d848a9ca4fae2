// Package guard manages the credentials that gate sensitive account
// mutations: typed single use security tokens and a per device session
// registry.
//
// Tokens:
//   - SecurityToken rows live in a relational store behind the Tokens
//     repository. Each (user, kind) pair holds at most one live token;
//     issuing a new one overwrites the prior in a single upsert so
//     concurrent issuers cannot race two live tokens into existence.
//   - Consumption is exactly-once: a conditional DELETE ... RETURNING hands
//     the row to exactly one caller, a second attempt sees not-found.
//     TokenManager binds the store to the mail delivery collaborator and
//     never retains or logs plaintext values.
//
// Sessions:
//   - Sessions live in a key-value store with native per-key expiry behind
//     SessionRegistry; absence from the store is the only notion of
//     "expired". A per user set of ids indexes the active devices view and
//     bulk revocation, best-effort and self-healing, while the primary key
//     lookup stays authoritative for authorization.
//   - Gate fronts every sensitive operation: uniform denial whether a
//     session expired or never existed, fail-closed with a distinct error
//     when the store is unreachable.
//
// Step up flows:
//   - The command handlers (password change, recovery, verification,
//     deactivation) are two state machines, AwaitingChallenge -> Confirmed,
//     with the challenge and confirm requests as distinct message types.
package guard
