// Package stomp implements the wire format spoken by stompd.
//
// A frame is a command line, zero or more "name:value" header lines, a blank
// line, and an optional body:
//
//	SEND
//	destination:/topic/a
//
//	hello
//
// On stream transports every frame is terminated by a NUL byte. The package
// splits a byte stream into frame texts ([Decoder]), parses frame text into a
// [Frame] ([Parse]), and renders frames back to text ([Frame.String]) and
// wire bytes ([Encode]).
//
// # Parsing Rules
//
//   - The command is everything up to the first line break.
//   - Header lines are split at the first colon only, so values may contain
//     colons ("destination:/topic/a:b" has value "/topic/a:b").
//   - The first empty line ends the header section. Everything after it is
//     the body, verbatim.
//   - A frame with no blank line has an empty body.
//   - When a header repeats, the first occurrence wins.
//   - A trailing "\r" on the command or a header line is dropped, so clients
//     that send CRLF line endings are accepted.
package stomp
