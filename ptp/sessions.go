package ptp

// DefaultSessionTable is grounded verbatim on
// original_source/dpdk/include/Config.h's PTP_SESSIONS_CONFIG_INIT:
// 32 sessions, each binding an RX (port, VLAN) to a TX (port, VLAN,
// VL-IDX).
var DefaultSessionTable = [SessionCount]SessionConfig{
	{RXPort: 5, RXVLAN: 225, TXPort: 2, TXVLAN: 97, TXVLIDX: 4420},
	{RXPort: 5, RXVLAN: 226, TXPort: 2, TXVLAN: 98, TXVLIDX: 4422},
	{RXPort: 5, RXVLAN: 227, TXPort: 2, TXVLAN: 99, TXVLIDX: 4424},
	{RXPort: 5, RXVLAN: 228, TXPort: 2, TXVLAN: 100, TXVLIDX: 4426},
	{RXPort: 4, RXVLAN: 229, TXPort: 3, TXVLAN: 101, TXVLIDX: 4428},
	{RXPort: 4, RXVLAN: 230, TXPort: 3, TXVLAN: 102, TXVLIDX: 4430},
	{RXPort: 4, RXVLAN: 231, TXPort: 3, TXVLAN: 103, TXVLIDX: 4432},
	{RXPort: 4, RXVLAN: 232, TXPort: 3, TXVLAN: 104, TXVLIDX: 4434},
	{RXPort: 7, RXVLAN: 233, TXPort: 0, TXVLAN: 105, TXVLIDX: 4436},
	{RXPort: 7, RXVLAN: 234, TXPort: 0, TXVLAN: 106, TXVLIDX: 4438},
	{RXPort: 7, RXVLAN: 235, TXPort: 0, TXVLAN: 107, TXVLIDX: 4440},
	{RXPort: 7, RXVLAN: 236, TXPort: 0, TXVLAN: 108, TXVLIDX: 4442},
	{RXPort: 6, RXVLAN: 237, TXPort: 1, TXVLAN: 109, TXVLIDX: 4444},
	{RXPort: 6, RXVLAN: 238, TXPort: 1, TXVLAN: 110, TXVLIDX: 4446},
	{RXPort: 6, RXVLAN: 239, TXPort: 1, TXVLAN: 111, TXVLIDX: 4448},
	{RXPort: 6, RXVLAN: 240, TXPort: 1, TXVLAN: 112, TXVLIDX: 4450},
	{RXPort: 3, RXVLAN: 241, TXPort: 4, TXVLAN: 113, TXVLIDX: 4452},
	{RXPort: 3, RXVLAN: 242, TXPort: 4, TXVLAN: 114, TXVLIDX: 4454},
	{RXPort: 3, RXVLAN: 243, TXPort: 4, TXVLAN: 115, TXVLIDX: 4456},
	{RXPort: 3, RXVLAN: 244, TXPort: 4, TXVLAN: 116, TXVLIDX: 4458},
	{RXPort: 2, RXVLAN: 245, TXPort: 5, TXVLAN: 117, TXVLIDX: 4460},
	{RXPort: 2, RXVLAN: 246, TXPort: 5, TXVLAN: 118, TXVLIDX: 4462},
	{RXPort: 2, RXVLAN: 247, TXPort: 5, TXVLAN: 119, TXVLIDX: 4464},
	{RXPort: 2, RXVLAN: 248, TXPort: 5, TXVLAN: 120, TXVLIDX: 4466},
	{RXPort: 1, RXVLAN: 249, TXPort: 6, TXVLAN: 121, TXVLIDX: 4468},
	{RXPort: 1, RXVLAN: 250, TXPort: 6, TXVLAN: 122, TXVLIDX: 4470},
	{RXPort: 1, RXVLAN: 251, TXPort: 6, TXVLAN: 123, TXVLIDX: 4472},
	{RXPort: 1, RXVLAN: 252, TXPort: 6, TXVLAN: 124, TXVLIDX: 4474},
	{RXPort: 0, RXVLAN: 253, TXPort: 7, TXVLAN: 125, TXVLIDX: 4476},
	{RXPort: 0, RXVLAN: 254, TXPort: 7, TXVLAN: 126, TXVLIDX: 4478},
	{RXPort: 0, RXVLAN: 255, TXPort: 7, TXVLAN: 127, TXVLIDX: 4480},
	{RXPort: 0, RXVLAN: 256, TXPort: 7, TXVLAN: 128, TXVLIDX: 4482},
}
