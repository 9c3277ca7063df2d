/*
Package transition defines Transition Requests, the tickets used to observe them and the
FIFO queue the Transition Controller drains once per tick.

A request is consumed at most once. Requests are applied in the exact order they were
issued; a ticket lets the issuer (a behavior or an external decision layer) observe the
outcome, register a result callback, or cancel the request while it is still pending.
*/
package transition
