package nodes

// Graph node names.
const (
	NodeInputConverter    = "input_converter"
	NodeExtractionModel   = "extraction_chat_model"
	NodeParser            = "extraction_parser"
	NodeSequencer         = "auto_sequencer"
	NodeHumanHandoff      = "human_handoff"
	NodeResponseAssembler = "response_assembler"
	NodeResponseChatModel = "response_chat_model"
	NodeToolExecutor      = "tool_executor"
	NodeOutputConverter   = "output_converter"
)
