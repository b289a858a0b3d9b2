/*
Package resilience guards calls to the remote authority with a circuit breaker.

When the remote keeps failing, the breaker opens and calls fail fast with
ErrCircuitOpen until a cooldown elapses. A limited number of probe calls then
decide whether to close again.

	breaker := resilience.New("authority", resilience.Settings{
		Cooldown: 15 * time.Second,
		Trip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})

	err := breaker.Do(ctx, func(ctx context.Context) error {
		return client.Save(ctx, item)
	})

States:

	Closed --[trip]-> Open --[cooldown]-> Half-Open --[probes succeed]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open
*/
package resilience
