package chain

// Minimal ABI fragments for the bounty contract and the oracle evaluation
// contract. Only the read surface the mirror consumes is declared; the
// byte-level encoding is handled by go-ethereum's abi package.
const bountyABIJSON = `[
  {
    "type": "function", "name": "bountyCount", "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function", "name": "getBounty", "stateMutability": "view",
    "inputs": [{"name": "bountyId", "type": "uint256"}],
    "outputs": [
      {"name": "creator", "type": "address"},
      {"name": "evaluationCid", "type": "string"},
      {"name": "classId", "type": "uint256"},
      {"name": "threshold", "type": "uint256"},
      {"name": "payoutWei", "type": "uint256"},
      {"name": "createdAt", "type": "uint256"},
      {"name": "submissionDeadline", "type": "uint256"},
      {"name": "status", "type": "uint8"},
      {"name": "winner", "type": "address"},
      {"name": "submissionCount", "type": "uint256"}
    ]
  },
  {
    "type": "function", "name": "getSubmission", "stateMutability": "view",
    "inputs": [
      {"name": "bountyId", "type": "uint256"},
      {"name": "submissionId", "type": "uint256"}
    ],
    "outputs": [
      {"name": "hunter", "type": "address"},
      {"name": "evaluationCid", "type": "string"},
      {"name": "hunterCid", "type": "string"},
      {"name": "verdiktaAggId", "type": "bytes32"},
      {"name": "status", "type": "uint8"},
      {"name": "submittedAt", "type": "uint256"},
      {"name": "finalizedAt", "type": "uint256"}
    ]
  },
  {
    "type": "event", "name": "BountyCreated", "anonymous": false,
    "inputs": [
      {"name": "bountyId", "type": "uint256", "indexed": true},
      {"name": "creator", "type": "address", "indexed": true}
    ]
  },
  {
    "type": "event", "name": "BountyClosed", "anonymous": false,
    "inputs": [{"name": "bountyId", "type": "uint256", "indexed": true}]
  },
  {
    "type": "event", "name": "SubmissionPrepared", "anonymous": false,
    "inputs": [
      {"name": "bountyId", "type": "uint256", "indexed": true},
      {"name": "submissionId", "type": "uint256", "indexed": true},
      {"name": "hunter", "type": "address", "indexed": false}
    ]
  },
  {
    "type": "event", "name": "WorkSubmitted", "anonymous": false,
    "inputs": [
      {"name": "bountyId", "type": "uint256", "indexed": true},
      {"name": "submissionId", "type": "uint256", "indexed": true}
    ]
  },
  {
    "type": "event", "name": "SubmissionFinalized", "anonymous": false,
    "inputs": [
      {"name": "bountyId", "type": "uint256", "indexed": true},
      {"name": "submissionId", "type": "uint256", "indexed": true},
      {"name": "status", "type": "uint8", "indexed": false}
    ]
  },
  {
    "type": "event", "name": "PayoutSent", "anonymous": false,
    "inputs": [
      {"name": "bountyId", "type": "uint256", "indexed": true},
      {"name": "recipient", "type": "address", "indexed": false},
      {"name": "amount", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event", "name": "LinkRefunded", "anonymous": false,
    "inputs": [
      {"name": "bountyId", "type": "uint256", "indexed": true},
      {"name": "recipient", "type": "address", "indexed": false},
      {"name": "amount", "type": "uint256", "indexed": false}
    ]
  }
]`

const evaluationABIJSON = `[
  {
    "type": "function", "name": "getEvaluation", "stateMutability": "view",
    "inputs": [{"name": "aggId", "type": "bytes32"}],
    "outputs": [
      {"name": "scores", "type": "uint256[]"},
      {"name": "justificationCids", "type": "string"},
      {"name": "exists", "type": "bool"}
    ]
  }
]`
