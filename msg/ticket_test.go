package msg

import "testing"

func baseTicket() *Ticket {
	return &Ticket{
		OwnDeviceID:    1,
		RemoteDeviceID: 2,
		MaxSeqNo:       10,
	}
}

func TestTicketValidRejectsSelfTicket(t *testing.T) {
	tk := baseTicket()
	tk.RemoteDeviceID = tk.OwnDeviceID
	if tk.Valid() {
		t.Fatalf("ticket to self should be invalid")
	}
}

func TestTicketValidRejectsTxSeqNoPastMax(t *testing.T) {
	tk := baseTicket()
	tk.TxSeqNo = tk.MaxSeqNo + 2
	if tk.Valid() {
		t.Fatalf("tx_seq_no beyond max_seq_no+1 should be invalid")
	}
}

func TestTicketValidAllowsTxSeqNoAtMaxPlusOne(t *testing.T) {
	tk := baseTicket()
	tk.TxSeqNo = tk.MaxSeqNo + 1 // exhausted but still a valid terminal state
	if !tk.Valid() {
		t.Fatalf("tx_seq_no == max_seq_no+1 should be valid (exhausted)")
	}
}

func TestTicketCanSendExhaustion(t *testing.T) {
	tk := baseTicket()
	tk.TxSeqNo = tk.MaxSeqNo
	if !tk.CanSend() {
		t.Fatalf("should be able to send the last allowed seq_no")
	}
	tk.AdvanceSend(tk.NextSendSeq())
	if tk.CanSend() {
		t.Fatalf("should not be able to send past max_seq_no")
	}
}

func TestTicketAcceptableRecvFirstMessage(t *testing.T) {
	tk := baseTicket()
	if !tk.AcceptableRecv(0) {
		t.Fatalf("seq_no 0 should be acceptable before any message has been accepted")
	}
	tk.AdvanceRecv(0)
	if tk.AcceptableRecv(0) {
		t.Fatalf("replaying seq_no 0 should be rejected")
	}
	if !tk.AcceptableRecv(1) {
		t.Fatalf("strictly increasing seq_no should be acceptable")
	}
}

func TestTicketAcceptableRecvRejectsOutOfOrder(t *testing.T) {
	tk := baseTicket()
	tk.AdvanceRecv(5)
	if tk.AcceptableRecv(5) {
		t.Fatalf("equal seq_no should be rejected as replay")
	}
	if tk.AcceptableRecv(3) {
		t.Fatalf("lower seq_no should be rejected as replay")
	}
	if !tk.AcceptableRecv(6) {
		t.Fatalf("next seq_no should be acceptable")
	}
}
