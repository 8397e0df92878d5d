/*
Package publish hands an evaluated task graph to whatever schedules it.

Publishers never interpret the graph. WriterPublisher renders it as JSON
for one-shot CLI runs; SocketIOPublisher emits it over a socket.io
connection to a remote scheduler and optionally waits for its reply.
*/
package publish
